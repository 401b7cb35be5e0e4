package engine

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Cyclone1070/propagent/internal/agent"
	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/ledger"
	"github.com/Cyclone1070/propagent/internal/provider"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/Cyclone1070/propagent/internal/workflow"
	"github.com/Cyclone1070/propagent/internal/workflow/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type step struct {
	resp *provider.Response
	err  error
}

// scriptedProvider replays a fixed sequence of responses.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
	// generateFunc, when set, replaces the script.
	generateFunc func(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

func (p *scriptedProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.generateFunc != nil {
		return p.generateFunc(ctx, req)
	}
	if len(p.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	return s.resp, s.err
}

func callTool(name string, args map[string]any) step {
	return step{resp: &provider.Response{
		Blocks:     []provider.Block{provider.ToolUseBlock("call-"+name, name, args)},
		StopReason: provider.StopToolUse,
		Usage:      provider.Usage{InputTokens: 20, OutputTokens: 5},
	}}
}

func answer(text string) step {
	return step{resp: &provider.Response{
		Blocks:     []provider.Block{provider.TextBlock(text)},
		StopReason: provider.StopEndTurn,
		Usage:      provider.Usage{InputTokens: 30, OutputTokens: 8},
	}}
}

func handlerTool(name string, h tool.Handler) tool.Tool {
	return tool.Tool{
		Name:        name,
		Description: name,
		Params:      []tool.Field{{Name: "id", Type: tool.TypeString}},
		Handler:     h,
	}
}

func okTool(name string) tool.Tool {
	return handlerTool(name, func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
		return "found " + name, nil
	})
}

// flakyTool fails its first call only.
func flakyTool(name string) tool.Tool {
	var mu sync.Mutex
	calls := 0
	return handlerTool(name, func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("upstream unavailable")
		}
		return "ok", nil
	})
}

type fixture struct {
	svc      *Service
	provider *scriptedProvider
	ledger   *ledger.Ledger
}

func newFixture(t *testing.T, defs ...agent.Definition) *fixture {
	t.Helper()
	reg := agent.NewRegistry(agent.Defaults{Model: "test-model", MaxIterations: 3})
	for _, d := range defs {
		_, err := reg.Register(d)
		require.NoError(t, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	store := ledger.NewSQLStore(db)
	require.NoError(t, store.Init(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := ledger.New(store, nil, logger)
	require.NoError(t, err)

	p := &scriptedProvider{}
	svc, err := New(reg, p, l, Options{RunTimeout: 5 * time.Second}, logger)
	require.NoError(t, err)
	return &fixture{svc: svc, provider: p, ledger: l}
}

func lookupAgent(threshold float64, gated ...string) agent.Definition {
	return agent.Definition{
		ID:           "assistant",
		Persona:      "assistant",
		SystemPrompt: "help",
		Tools:        []tool.Tool{okTool("lookup"), okTool("terminate_lease")},
		Settings: agent.Settings{
			ConfidenceThreshold:     threshold,
			RequiresApprovalActions: gated,
		},
	}
}

func chat(message string) execution.Context {
	return execution.NewChatMessage("prop-1", "tenant-7", message, nil)
}

func TestRunAgent_TwoLookupsThenAnswer(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))
	f.provider.steps = []step{
		callTool("lookup", map[string]any{"id": "a"}),
		callTool("lookup", map[string]any{"id": "b"}),
		answer("Both leases are active."),
	}

	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("check my leases"))
	require.NoError(t, err)

	assert.Equal(t, 3, f.provider.calls)
	assert.Equal(t, 3, d.Iterations)
	require.Len(t, d.ToolCalls, 2)
	assert.Equal(t, 1.0, d.Confidence)
	assert.False(t, d.RequiresApproval)
	assert.Equal(t, "lookup", d.Action)
	assert.Equal(t, "Both leases are active.", d.Reasoning)
	assert.Equal(t, string(loop.ReasonEndTurn), d.TerminationReason)
	assert.Equal(t, 20*2+5*2+30+8, d.TokensUsed)
	assert.Equal(t, ledger.OutcomePending, d.Outcome)

	var toolLatency int64
	for _, c := range d.ToolCalls {
		toolLatency += c.LatencyMs
	}
	assert.LessOrEqual(t, toolLatency, d.LatencyMs)

	stored, err := f.svc.GetDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, stored.ID)
	assert.Equal(t, "assistant", stored.AgentID)

	action, err := f.svc.GetAction(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionExecuted, action.Status)
}

func TestRunAgent_LowConfidenceNeedsApproval(t *testing.T) {
	def := lookupAgent(0.95)
	def.Tools = []tool.Tool{flakyTool("lookup")}
	f := newFixture(t, def)
	f.provider.steps = []step{
		callTool("lookup", map[string]any{"id": "a"}),
		callTool("lookup", map[string]any{"id": "a"}),
		answer("Found it on retry."),
	}

	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("find lease a"))
	require.NoError(t, err)
	assert.InDelta(t, 0.55, d.Confidence, 1e-9)
	assert.True(t, d.RequiresApproval)

	pending, err := f.svc.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, d.ID, pending[0].ID)

	approved, err := f.svc.ApproveDecision(context.Background(), d.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeAccepted, approved.Outcome)

	again, err := f.svc.ApproveDecision(context.Background(), d.ID, "mgr-1")
	require.NoError(t, err)
	require.NotNil(t, again.ReviewedAt)
	assert.True(t, again.ReviewedAt.Equal(*approved.ReviewedAt))

	_, err = f.svc.RejectDecision(context.Background(), d.ID, "mgr-2", "too late")
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestRunAgent_GatedToolAlwaysNeedsApproval(t *testing.T) {
	f := newFixture(t, lookupAgent(0.5, "terminate_lease"))
	f.provider.steps = []step{
		callTool("terminate_lease", map[string]any{"id": "lease-202"}),
		answer("Lease terminated."),
	}

	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("end lease 202"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, "terminate_lease", d.Action)

	action, err := f.svc.GetAction(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionPending, action.Status)

	rejected, err := f.svc.RejectDecision(context.Background(), d.ID, "mgr-1", "")
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeRejected, rejected.Outcome)

	action, err = f.svc.GetAction(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionCancelled, action.Status)
}

func TestRunAgent_ProviderFailureIsRecorded(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8, "terminate_lease"))
	f.provider.steps = []step{
		callTool("terminate_lease", map[string]any{"id": "lease-202"}),
		{err: &provider.ProviderError{Code: provider.ErrorCodeRateLimit, Message: "slow down"}},
	}

	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("end lease 202"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Confidence)
	assert.False(t, d.RequiresApproval)
	assert.Equal(t, ActionError, d.Action)
	assert.Contains(t, d.Reasoning, "slow down")
	assert.Equal(t, string(loop.ReasonProviderError), d.TerminationReason)
	assert.Len(t, d.ToolCalls, 1)

	pending, err := f.svc.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunAgent_IterationCap(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))
	f.provider.generateFunc = func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		return callTool("lookup", map[string]any{"id": "again"}).resp, nil
	}

	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("loop forever"))
	require.NoError(t, err)
	assert.Equal(t, 3, f.provider.calls)
	assert.Equal(t, string(loop.ReasonMaxIterations), d.TerminationReason)
	assert.Empty(t, d.Reasoning)
	assert.Len(t, d.ToolCalls, 3)
}

func TestRunAgent_FallbackActionLabels(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))

	f.provider.steps = []step{answer("Hello there.")}
	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("hi"))
	require.NoError(t, err)
	assert.Equal(t, ActionRespond, d.Action)

	f.provider.steps = []step{answer("Nothing to do.")}
	d, err = f.svc.RunAgent(context.Background(), "assistant", execution.Context{
		ScopeID:        "prop-1",
		TriggerType:    execution.TriggerScheduled,
		TriggerPayload: map[string]any{"job": "nightly_sweep"},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionNoAction, d.Action)
	assert.Equal(t, execution.TriggerScheduled, d.Context.TriggerType)
}

func TestRunAgent_TemperaturePassedThrough(t *testing.T) {
	zero := lookupAgent(0.8)
	zero.Settings.Temperature = new(float64)
	unset := lookupAgent(0.8)
	unset.ID, unset.Persona = "drafter", "drafter"
	f := newFixture(t, zero, unset)

	var got []*float64
	f.provider.generateFunc = func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		got = append(got, req.Temperature)
		return answer("done").resp, nil
	}

	_, err := f.svc.RunAgent(context.Background(), "assistant", chat("hi"))
	require.NoError(t, err)
	_, err = f.svc.RunAgent(context.Background(), "drafter", chat("hi"))
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.NotNil(t, got[0], "explicit zero must reach the provider")
	assert.Equal(t, 0.0, *got[0])
	assert.Nil(t, got[1])
}

func TestRunAgent_PreflightRejections(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))

	_, err := f.svc.RunAgent(context.Background(), "nobody", chat("hi"))
	assert.ErrorIs(t, err, agent.ErrUnknownPersona)
	assert.ErrorContains(t, err, "available: assistant")

	_, err = f.svc.RunAgent(context.Background(), "assistant", execution.Context{TriggerType: execution.TriggerEvent})
	assert.ErrorIs(t, err, execution.ErrMissingScope)

	assert.Equal(t, 0, f.provider.calls)
	pending, err := f.ledger.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunAgent_AbandonedRunIsNotRecorded(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8, "lookup"))
	ctx, cancel := context.WithCancel(context.Background())
	f.provider.generateFunc = func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.svc.RunAgent(ctx, "assistant", chat("hi"))
	assert.ErrorIs(t, err, loop.ErrAbandoned)

	pending, err := f.ledger.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunAgent_ModelTimeoutIsProviderFailure(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))
	f.svc.opts.ModelTimeout = 10 * time.Millisecond
	f.provider.generateFunc = func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		<-ctx.Done()
		return nil, &provider.ProviderError{Code: provider.ErrorCodeTimeout, Message: "deadline exceeded", Underlying: ctx.Err()}
	}

	d, err := f.svc.RunAgent(context.Background(), "assistant", chat("hi"))
	require.NoError(t, err)
	assert.Equal(t, string(loop.ReasonProviderError), d.TerminationReason)
	assert.Equal(t, 0.0, d.Confidence)
}

type failingLedger struct {
	decisionLedger
}

func (failingLedger) Record(context.Context, string, ledger.Decision, execution.Context) (ledger.Decision, error) {
	return ledger.Decision{}, errors.New("database is locked")
}

func TestRunAgent_LedgerFailurePropagates(t *testing.T) {
	reg := agent.NewRegistry(agent.Defaults{Model: "test-model", MaxIterations: 3})
	_, err := reg.Register(lookupAgent(0.8))
	require.NoError(t, err)
	p := &scriptedProvider{steps: []step{answer("done")}}

	svc, err := New(reg, p, failingLedger{}, Options{}, nil)
	require.NoError(t, err)

	_, err = svc.RunAgent(context.Background(), "assistant", chat("hi"))
	assert.ErrorContains(t, err, "database is locked")
}

func TestRunAgent_StreamsEvents(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))
	f.provider.steps = []step{
		callTool("lookup", map[string]any{"id": "a"}),
		answer("done"),
	}

	events := make(chan workflow.Event, 32)
	_, err := f.svc.RunAgent(context.Background(), "assistant", chat("hi"), WithEvents(events))
	require.NoError(t, err)
	close(events)

	var kinds []string
	for ev := range events {
		switch e := ev.(type) {
		case workflow.ToolStartEvent:
			kinds = append(kinds, "start:"+e.ToolName)
		case workflow.ToolEndEvent:
			kinds = append(kinds, "end:"+e.ToolName)
		case workflow.DoneEvent:
			kinds = append(kinds, "done:"+e.Reason)
		}
	}
	assert.Equal(t, []string{"start:lookup", "end:lookup", "done:end_turn"}, kinds)
}

func TestRunAgent_ConcurrentRuns(t *testing.T) {
	f := newFixture(t, lookupAgent(0.8))
	f.provider.generateFunc = func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		return answer("ok").resp, nil
	}

	var wg sync.WaitGroup
	ids := make([]string, 6)
	errs := make([]error, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := f.svc.RunAgent(context.Background(), "assistant", chat("hi"))
			ids[i], errs[i] = d.ID, err
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]])
		seen[ids[i]] = true
	}
}
