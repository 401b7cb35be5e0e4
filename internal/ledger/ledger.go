package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// decisionStore is the persistence the ledger needs.
type decisionStore interface {
	Insert(ctx context.Context, d Decision, a ActionRecord) error
	Get(ctx context.Context, id string) (Decision, error)
	ListPending(ctx context.Context, limit int) ([]Decision, error)
	Action(ctx context.Context, decisionID string) (ActionRecord, error)
	Apply(ctx context.Context, t Transition) (Decision, bool, error)
}

var tracer = otel.Tracer("github.com/Cyclone1070/propagent/internal/ledger")

// Ledger records decisions and applies reviews.
type Ledger struct {
	store    decisionStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	recorded metric.Int64Counter
	reviewed metric.Int64Counter
}

// New creates a Ledger. A nil notifier drops events; a nil logger uses slog.Default.
func New(store decisionStore, notifier Notifier, logger *slog.Logger) (*Ledger, error) {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("github.com/Cyclone1070/propagent/internal/ledger")
	recorded, err := meter.Int64Counter("propagent.decisions.recorded",
		metric.WithDescription("Decisions recorded, by agent and approval requirement"))
	if err != nil {
		return nil, fmt.Errorf("create recorded counter: %w", err)
	}
	reviewed, err := meter.Int64Counter("propagent.decisions.reviewed",
		metric.WithDescription("Decisions moved out of pending, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create reviewed counter: %w", err)
	}
	return &Ledger{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "ledger"),
		now:      time.Now,
		newID:    uuid.NewString,
		recorded: recorded,
		reviewed: reviewed,
	}, nil
}

// Record stores d as a new pending decision together with its action record.
// Identity, outcome and timestamps are assigned here. An error means nothing
// was stored.
func (l *Ledger) Record(ctx context.Context, agentID string, d Decision, ec execution.Context) (Decision, error) {
	ctx, span := tracer.Start(ctx, "ledger.record")
	defer span.End()

	now := l.now().UTC()
	d.ID = l.newID()
	d.AgentID = agentID
	d.Context = ec
	d.Outcome = OutcomePending
	d.HumanFeedback = ""
	d.ReviewedBy = ""
	d.ReviewedAt = nil
	d.CreatedAt = now
	if d.ToolCalls == nil {
		d.ToolCalls = []ToolCall{}
	}

	a := actionFor(l.newID(), d, now)
	if err := l.store.Insert(ctx, d, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, fmt.Errorf("record decision: %w", err)
	}

	span.SetAttributes(
		attribute.String("decision.id", d.ID),
		attribute.Bool("decision.requires_approval", d.RequiresApproval),
	)
	l.recorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.Bool("requires_approval", d.RequiresApproval),
	))
	l.logger.Info("decision recorded",
		"decision_id", d.ID,
		"agent", agentID,
		"scope", ec.ScopeID,
		"action", d.Action,
		"confidence", d.Confidence,
		"requires_approval", d.RequiresApproval,
		"termination_reason", d.TerminationReason,
	)

	if d.RequiresApproval {
		l.notify(ctx, eventFor(EventPending, d, now))
	}
	return d, nil
}

// actionFor derives the operational record. It is executed right away unless
// the decision waits for review.
func actionFor(id string, d Decision, now time.Time) ActionRecord {
	status := ActionExecuted
	if d.RequiresApproval {
		status = ActionPending
	}
	output := map[string]any{
		"reasoning":  d.Reasoning,
		"tool_calls": len(d.ToolCalls),
	}
	for i := len(d.ToolCalls) - 1; i >= 0; i-- {
		if tc := d.ToolCalls[i]; tc.Success && tc.ToolName == d.Action {
			output["result"] = tc.Output
			break
		}
	}
	return ActionRecord{
		ID:         id,
		DecisionID: d.ID,
		AgentID:    d.AgentID,
		ScopeID:    d.Context.ScopeID,
		ActionType: d.Action,
		Trigger:    string(d.Context.TriggerType),
		InputData:  d.Context.TriggerPayload,
		OutputData: output,
		Confidence: d.Confidence,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Approve accepts a pending decision and marks its action executed.
// Approving an accepted decision returns it unchanged; approving a rejected
// one fails with ErrConflict.
func (l *Ledger) Approve(ctx context.Context, id, actorID string) (Decision, error) {
	return l.review(ctx, Transition{ID: id, To: OutcomeAccepted, Status: ActionExecuted, Actor: actorID})
}

// Reject rejects a pending decision and cancels its action. The reason is
// kept as human feedback. Rejecting a rejected decision returns it unchanged;
// rejecting an accepted one fails with ErrConflict.
func (l *Ledger) Reject(ctx context.Context, id, actorID, reason string) (Decision, error) {
	return l.review(ctx, Transition{ID: id, To: OutcomeRejected, Status: ActionCancelled, Actor: actorID, Feedback: reason})
}

func (l *Ledger) review(ctx context.Context, t Transition) (Decision, error) {
	if t.ID == "" {
		return Decision{}, ErrNotFound
	}
	if t.Actor == "" {
		return Decision{}, fmt.Errorf("actor id is required")
	}
	t.At = l.now().UTC()

	d, changed, err := l.store.Apply(ctx, t)
	if err != nil {
		return Decision{}, err
	}
	if !changed {
		l.logger.Debug("review repeated", "decision_id", t.ID, "outcome", t.To)
		return d, nil
	}

	l.reviewed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(t.To))))
	l.logger.Info("decision reviewed", "decision_id", t.ID, "outcome", t.To, "actor", t.Actor)
	l.notify(ctx, eventFor(EventResolved, d, t.At))
	return d, nil
}

// Get returns a decision by id.
func (l *Ledger) Get(ctx context.Context, id string) (Decision, error) {
	return l.store.Get(ctx, id)
}

// Action returns the action record of a decision.
func (l *Ledger) Action(ctx context.Context, decisionID string) (ActionRecord, error) {
	return l.store.Action(ctx, decisionID)
}

// ListPending returns up to limit decisions awaiting review, oldest first.
func (l *Ledger) ListPending(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListPending(ctx, limit)
}

func (l *Ledger) notify(ctx context.Context, ev Event) {
	if err := l.notifier.Notify(ctx, ev); err != nil {
		l.logger.Warn("notify failed", "decision_id", ev.DecisionID, "event", ev.Type, "error", err)
	}
}
