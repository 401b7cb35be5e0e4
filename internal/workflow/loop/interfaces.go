package loop

import (
	"context"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/provider"
	"github.com/Cyclone1070/propagent/internal/tool"
)

// llmProvider communicates with an LLM.
type llmProvider interface {
	// Generate sends one request to the LLM and returns its response.
	Generate(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// toolExecutor resolves and runs the tools of one agent.
type toolExecutor interface {
	// Declarations returns all tool schemas for the LLM.
	Declarations() []tool.Declaration

	// Execute runs one tool call. Failures come back inside the Result.
	Execute(ctx context.Context, name string, raw map[string]any, ec execution.Context) tool.Result
}
