// Package ledger durably records decisions and their action records, and moves
// pending decisions to a reviewed state.
package ledger

import (
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/tool"
)

// Outcome of a decision.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// ActionStatus of an action record.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuted  ActionStatus = "executed"
	ActionCancelled ActionStatus = "cancelled"
)

// ToolCall is one tool invocation as stored in a decision.
type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	Input     map[string]any `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Success   bool           `json:"success"`
	LatencyMs int64          `json:"latency_ms"`
}

// ToolCallsFrom converts executor results into stored tool calls.
func ToolCallsFrom(results []tool.Result) []ToolCall {
	out := make([]ToolCall, len(results))
	for i, r := range results {
		out[i] = ToolCall{
			ToolName:  r.Name,
			Input:     r.Input,
			Output:    r.Output,
			Error:     r.Error,
			Success:   r.Success,
			LatencyMs: r.Latency.Milliseconds(),
		}
	}
	return out
}

// Decision is the audit record of one run. Only the review fields change
// after it is recorded.
type Decision struct {
	ID                string            `json:"id"`
	AgentID           string            `json:"agent_id"`
	Action            string            `json:"action"`
	Reasoning         string            `json:"reasoning"`
	Confidence        float64           `json:"confidence"`
	RequiresApproval  bool              `json:"requires_approval"`
	ToolCalls         []ToolCall        `json:"tool_calls"`
	TokensUsed        int               `json:"tokens_used"`
	LatencyMs         int64             `json:"latency_ms"`
	TerminationReason string            `json:"termination_reason"`
	Iterations        int               `json:"iterations"`
	Context           execution.Context `json:"context"`
	Outcome           Outcome           `json:"outcome"`
	HumanFeedback     string            `json:"human_feedback,omitempty"`
	ReviewedBy        string            `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// ActionRecord is the lightweight operational mirror of a decision.
type ActionRecord struct {
	ID         string         `json:"id"`
	DecisionID string         `json:"decision_id"`
	AgentID    string         `json:"agent_id"`
	ScopeID    string         `json:"scope_id"`
	ActionType string         `json:"action_type"`
	Trigger    string         `json:"trigger"`
	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	Confidence float64        `json:"confidence"`
	Status     ActionStatus   `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
