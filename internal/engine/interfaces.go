package engine

import (
	"context"

	"github.com/Cyclone1070/propagent/internal/agent"
	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/ledger"
	"github.com/Cyclone1070/propagent/internal/provider"
)

// agentRegistry resolves personas to registered agents.
type agentRegistry interface {
	Lookup(key string) (*agent.Agent, error)
	Personas() []string
}

// llmProvider communicates with an LLM.
type llmProvider interface {
	Generate(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// decisionLedger records decisions and applies reviews.
type decisionLedger interface {
	Record(ctx context.Context, agentID string, d ledger.Decision, ec execution.Context) (ledger.Decision, error)
	Approve(ctx context.Context, id, actorID string) (ledger.Decision, error)
	Reject(ctx context.Context, id, actorID, reason string) (ledger.Decision, error)
	Get(ctx context.Context, id string) (ledger.Decision, error)
	Action(ctx context.Context, decisionID string) (ledger.ActionRecord, error)
	ListPending(ctx context.Context, limit int) ([]ledger.Decision, error)
}
