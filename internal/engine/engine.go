// Package engine is the caller-facing API: run an agent persona against an
// execution context, then approve or reject what it decided.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Cyclone1070/propagent/internal/agent"
	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/ledger"
	"github.com/Cyclone1070/propagent/internal/policy"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/Cyclone1070/propagent/internal/workflow"
	"github.com/Cyclone1070/propagent/internal/workflow/loop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Action labels used when no tool call succeeded.
const (
	ActionRespond  = "respond"
	ActionNoAction = "no_action"
	ActionError    = "error"
)

// Options bound the runs of a Service.
type Options struct {
	// RunTimeout bounds a whole run. A run that exceeds it is abandoned.
	RunTimeout time.Duration
	// ModelTimeout bounds each model call. Exceeding it is a provider failure.
	ModelTimeout time.Duration
}

var tracer = otel.Tracer("github.com/Cyclone1070/propagent/internal/engine")

// Service runs agents and records their decisions. Safe for concurrent use;
// runs share nothing but the ledger.
type Service struct {
	registry agentRegistry
	provider llmProvider
	ledger   decisionLedger
	opts     Options
	logger   *slog.Logger

	runDuration metric.Float64Histogram
}

// New creates a Service. A nil logger uses slog.Default.
func New(registry agentRegistry, llm llmProvider, l decisionLedger, opts Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	hist, err := otel.Meter("github.com/Cyclone1070/propagent/internal/engine").Float64Histogram(
		"propagent.run.duration",
		metric.WithDescription("Wall-clock duration of agent runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run duration histogram: %w", err)
	}
	return &Service{
		registry:    registry,
		provider:    llm,
		ledger:      l,
		opts:        opts,
		logger:      logger.With("component", "engine"),
		runDuration: hist,
	}, nil
}

type runConfig struct {
	events chan<- workflow.Event
}

// RunOption customizes a single run.
type RunOption func(*runConfig)

// WithEvents streams loop progress to ch. The caller must drain it.
func WithEvents(ch chan<- workflow.Event) RunOption {
	return func(c *runConfig) { c.events = ch }
}

// RunAgent runs the named persona to completion and records the decision.
//
// Unknown personas and invalid contexts are rejected before any model call.
// A model-call failure still yields a recorded decision with confidence 0.
// A run abandoned through ctx returns an error wrapping loop.ErrAbandoned and
// records nothing. A ledger failure is returned even if the run succeeded.
func (s *Service) RunAgent(ctx context.Context, persona string, ec execution.Context, opts ...RunOption) (ledger.Decision, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	a, err := s.registry.Lookup(persona)
	if errors.Is(err, agent.ErrUnknownPersona) {
		return ledger.Decision{}, fmt.Errorf("%w (available: %s)", err, strings.Join(s.registry.Personas(), ", "))
	}
	if err != nil {
		return ledger.Decision{}, err
	}
	if err := ec.Validate(); err != nil {
		return ledger.Decision{}, err
	}

	ctx, span := tracer.Start(ctx, "engine.run_agent", trace.WithAttributes(
		attribute.String("agent.id", a.ID()),
		attribute.String("scope.id", ec.ScopeID),
		attribute.String("trigger.type", string(ec.TriggerType)),
		attribute.StringSlice("agent.tools", a.Executor().Names()),
	))
	defer span.End()

	runCtx := ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	def := a.Definition()
	settings := a.Settings()
	l := loop.NewLoop(s.provider, a.Executor(), rc.events, loop.Config{
		Model:         def.Model,
		SystemPrompt:  def.SystemPrompt,
		Temperature:   settings.Temperature,
		MaxTokens:     settings.MaxTokens,
		MaxIterations: settings.MaxIterations,
		ModelTimeout:  s.opts.ModelTimeout,
	}, s.logger)

	out, err := l.Run(runCtx, ec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, loop.ErrAbandoned) {
			s.logger.Warn("run abandoned", "agent", a.ID(), "scope", ec.ScopeID, "error", err)
		}
		return ledger.Decision{}, err
	}
	s.runDuration.Record(ctx, out.Latency.Seconds(), metric.WithAttributes(
		attribute.String("agent", a.ID()),
		attribute.String("termination_reason", string(out.Reason)),
	))

	d := decide(settings, ec, out)
	if out.Reason == loop.ReasonProviderError {
		s.logger.Warn("model call failed", "agent", a.ID(), "scope", ec.ScopeID, "error", out.Err)
	}

	recorded, err := s.ledger.Record(ctx, a.ID(), d, ec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledger.Decision{}, err
	}
	span.SetAttributes(
		attribute.String("decision.id", recorded.ID),
		attribute.Float64("decision.confidence", recorded.Confidence),
		attribute.Bool("decision.requires_approval", recorded.RequiresApproval),
	)
	return recorded, nil
}

// decide turns a finished loop into an unrecorded decision.
func decide(s agent.Settings, ec execution.Context, out *loop.Outcome) ledger.Decision {
	failed := out.Reason == loop.ReasonProviderError
	verdict := policy.Evaluate(s, out.Transcript, failed)

	reasoning := out.Text
	if failed {
		reasoning = fmt.Sprintf("model call failed: %v", out.Err)
	}

	return ledger.Decision{
		Action:            actionLabel(ec, out.Transcript, failed),
		Reasoning:         reasoning,
		Confidence:        verdict.Confidence,
		RequiresApproval:  verdict.RequiresApproval,
		ToolCalls:         ledger.ToolCallsFrom(out.Transcript),
		TokensUsed:        out.Usage.Total(),
		LatencyMs:         out.Latency.Milliseconds(),
		TerminationReason: string(out.Reason),
		Iterations:        out.ModelCalls,
	}
}

// actionLabel names what the run did: the last tool that succeeded, or a
// fallback by trigger type.
func actionLabel(ec execution.Context, calls []tool.Result, failed bool) string {
	if failed {
		return ActionError
	}
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Success {
			return calls[i].Name
		}
	}
	if ec.TriggerType == execution.TriggerChatMessage {
		return ActionRespond
	}
	return ActionNoAction
}

// ApproveDecision accepts a pending decision on behalf of actorID.
func (s *Service) ApproveDecision(ctx context.Context, id, actorID string) (ledger.Decision, error) {
	return s.ledger.Approve(ctx, id, actorID)
}

// RejectDecision rejects a pending decision. reason may be empty.
func (s *Service) RejectDecision(ctx context.Context, id, actorID, reason string) (ledger.Decision, error) {
	return s.ledger.Reject(ctx, id, actorID, reason)
}

// GetDecision returns a recorded decision.
func (s *Service) GetDecision(ctx context.Context, id string) (ledger.Decision, error) {
	return s.ledger.Get(ctx, id)
}

// GetAction returns the action record derived from a decision.
func (s *Service) GetAction(ctx context.Context, decisionID string) (ledger.ActionRecord, error) {
	return s.ledger.Action(ctx, decisionID)
}

// ListPending returns decisions awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]ledger.Decision, error) {
	return s.ledger.ListPending(ctx, limit)
}
