package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists decisions and action records with database/sql.
// Queries use $N placeholders, which both lib/pq and modernc sqlite accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	scope_id TEXT NOT NULL,
	action TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	requires_approval BOOLEAN NOT NULL,
	tool_calls TEXT NOT NULL,
	tokens_used BIGINT NOT NULL,
	latency_ms BIGINT NOT NULL,
	termination_reason TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	context TEXT NOT NULL,
	outcome TEXT NOT NULL,
	human_feedback TEXT NOT NULL DEFAULT '',
	reviewed_by TEXT NOT NULL DEFAULT '',
	reviewed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS decisions_review_queue ON decisions (outcome, requires_approval, created_at)`, `
CREATE TABLE IF NOT EXISTS actions (
	id TEXT PRIMARY KEY,
	decision_id TEXT NOT NULL UNIQUE REFERENCES decisions(id),
	agent_id TEXT NOT NULL,
	scope_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	input_data TEXT NOT NULL,
	output_data TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
}

// Init creates the tables if they do not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Insert writes a decision and its action record in one transaction,
// decision first.
func (s *SQLStore) Insert(ctx context.Context, d Decision, a ActionRecord) error {
	toolCalls, err := json.Marshal(d.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	ec, err := json.Marshal(d.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	input, err := json.Marshal(a.InputData)
	if err != nil {
		return fmt.Errorf("encode action input: %w", err)
	}
	output, err := json.Marshal(a.OutputData)
	if err != nil {
		return fmt.Errorf("encode action output: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decisions (id, agent_id, scope_id, action, reasoning, confidence, requires_approval,
			tool_calls, tokens_used, latency_ms, termination_reason, iterations, context, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.AgentID, d.Context.ScopeID, d.Action, d.Reasoning, d.Confidence, d.RequiresApproval,
		string(toolCalls), d.TokensUsed, d.LatencyMs, d.TerminationReason, d.Iterations, string(ec),
		string(d.Outcome), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO actions (id, decision_id, agent_id, scope_id, action_type, trigger_type,
			input_data, output_data, confidence, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.DecisionID, a.AgentID, a.ScopeID, a.ActionType, a.Trigger,
		string(input), string(output), a.Confidence, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const decisionColumns = `id, agent_id, action, reasoning, confidence, requires_approval, tool_calls,
	tokens_used, latency_ms, termination_reason, iterations, context, outcome, human_feedback,
	reviewed_by, reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (Decision, error) {
	var (
		d          Decision
		toolCalls  string
		ec         string
		outcome    string
		reviewedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.AgentID, &d.Action, &d.Reasoning, &d.Confidence, &d.RequiresApproval,
		&toolCalls, &d.TokensUsed, &d.LatencyMs, &d.TerminationReason, &d.Iterations, &ec, &outcome,
		&d.HumanFeedback, &d.ReviewedBy, &reviewedAt, &d.CreatedAt)
	if err != nil {
		return Decision{}, err
	}
	if err := json.Unmarshal([]byte(toolCalls), &d.ToolCalls); err != nil {
		return Decision{}, fmt.Errorf("decode tool calls of %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(ec), &d.Context); err != nil {
		return Decision{}, fmt.Errorf("decode context of %s: %w", d.ID, err)
	}
	d.Outcome = Outcome(outcome)
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		d.ReviewedAt = &t
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

// Get returns the decision with the given id.
func (s *SQLStore) Get(ctx context.Context, id string) (Decision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id = $1`, id)
	d, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Decision{}, ErrNotFound
		}
		return Decision{}, err
	}
	return d, nil
}

// ListPending returns decisions awaiting review, oldest first.
func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE outcome = $1 AND requires_approval = $2
		ORDER BY created_at, id
		LIMIT $3`, string(OutcomePending), true, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Decision, 0)
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Action returns the action record of a decision.
func (s *SQLStore) Action(ctx context.Context, decisionID string) (ActionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, decision_id, agent_id, scope_id, action_type, trigger_type, input_data, output_data,
			confidence, status, created_at, updated_at
		FROM actions WHERE decision_id = $1`, decisionID)

	var (
		a      ActionRecord
		input  string
		output string
		status string
	)
	err := row.Scan(&a.ID, &a.DecisionID, &a.AgentID, &a.ScopeID, &a.ActionType, &a.Trigger,
		&input, &output, &a.Confidence, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActionRecord{}, ErrNotFound
		}
		return ActionRecord{}, err
	}
	if err := json.Unmarshal([]byte(input), &a.InputData); err != nil {
		return ActionRecord{}, fmt.Errorf("decode action input: %w", err)
	}
	if err := json.Unmarshal([]byte(output), &a.OutputData); err != nil {
		return ActionRecord{}, fmt.Errorf("decode action output: %w", err)
	}
	a.Status = ActionStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// Transition describes a review of a pending decision.
type Transition struct {
	ID       string
	To       Outcome
	Status   ActionStatus
	Actor    string
	Feedback string
	At       time.Time
}

// Apply moves a pending decision to t.To and its action to t.Status in one
// transaction. Repeating a transition that already happened changes nothing
// and reports changed=false. Requesting the other terminal outcome is a
// *ConflictError.
func (s *SQLStore) Apply(ctx context.Context, t Transition) (d Decision, changed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE decisions SET outcome = $1, human_feedback = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $5 AND outcome = $6`,
		string(t.To), t.Feedback, t.Actor, t.At, t.ID, string(OutcomePending),
	)
	if err != nil {
		return Decision{}, false, fmt.Errorf("update decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Decision{}, false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT outcome FROM decisions WHERE id = $1`, t.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return Decision{}, false, ErrNotFound
		}
		if err != nil {
			return Decision{}, false, fmt.Errorf("read outcome: %w", err)
		}
		if Outcome(current) != t.To {
			return Decision{}, false, &ConflictError{ID: t.ID, Current: Outcome(current), Requested: t.To}
		}
		_ = tx.Rollback()
		d, err := s.Get(ctx, t.ID)
		return d, false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE actions SET status = $1, updated_at = $2 WHERE decision_id = $3`,
		string(t.Status), t.At, t.ID); err != nil {
		return Decision{}, false, fmt.Errorf("update action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Decision{}, false, fmt.Errorf("commit: %w", err)
	}

	d, err = s.Get(ctx, t.ID)
	return d, true, err
}
