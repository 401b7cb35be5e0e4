package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Cyclone1070/propagent/internal/agent"
	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/ledger"
	"github.com/Cyclone1070/propagent/internal/tool/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtinFixture(t *testing.T) (*fixture, *property.InMemoryStore) {
	t.Helper()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	store := property.NewInMemoryStore()
	property.Seed(store, now)
	toolset := property.NewToolset(store, func() time.Time { return now })

	defs, err := agent.Builtin(toolset.Tools())
	require.NoError(t, err)
	return newFixture(t, defs...), store
}

func TestBuiltin_CollectionsSendsReminder(t *testing.T) {
	f, store := builtinFixture(t)
	f.provider.steps = []step{
		callTool(property.ListOverdueInvoices, map[string]any{"min_days_overdue": 7}),
		callTool(property.SendPaymentReminder, map[string]any{
			"invoice_id": "inv-9001",
			"message":    "Your rent for unit 202 is 12 days overdue.",
		}),
		answer("Sent a reminder for inv-9001."),
	}

	ec := execution.Context{
		ScopeID:        "prop-1",
		TriggerType:    execution.TriggerScheduled,
		TriggerPayload: map[string]any{"job": "overdue_sweep"},
	}
	d, err := f.svc.RunAgent(context.Background(), "collections", ec)
	require.NoError(t, err)

	assert.Equal(t, "collections", d.AgentID)
	assert.Equal(t, property.SendPaymentReminder, d.Action)
	assert.Equal(t, 1.0, d.Confidence)
	assert.False(t, d.RequiresApproval)
	require.Len(t, d.ToolCalls, 2)
	assert.True(t, d.ToolCalls[0].Success)
	assert.True(t, d.ToolCalls[1].Success)
	reminders := store.Reminders()
	require.Len(t, reminders, 1)
	assert.Equal(t, "inv-9001", reminders[0].InvoiceID)
	assert.Equal(t, "email", reminders[0].Channel)
}

func TestBuiltin_LeasingTerminationWaitsForApproval(t *testing.T) {
	f, _ := builtinFixture(t)
	f.provider.steps = []step{
		// Missing the required reason.
		callTool(property.TerminateLease, map[string]any{"lease_id": "lease-202"}),
		callTool(property.TerminateLease, map[string]any{"lease_id": "lease-202", "reason": "tenant moving out"}),
		answer("Lease 202 terminated."),
	}

	d, err := f.svc.RunAgent(context.Background(), "leasing",
		execution.NewChatMessage("prop-1", "tenant-2", "I am moving out of 202", nil))
	require.NoError(t, err)

	assert.InDelta(t, 0.55, d.Confidence, 1e-9)
	assert.True(t, d.RequiresApproval)
	assert.Contains(t, d.ToolCalls[0].Error, "invalid tool input")
	assert.Contains(t, d.ToolCalls[0].Error, "reason")

	pending, err := f.svc.ListPending(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, d.ID, pending[0].ID)
}

func TestBuiltin_OutOfScopeToolCallFails(t *testing.T) {
	f, _ := builtinFixture(t)
	f.provider.steps = []step{
		callTool(property.GetLease, map[string]any{"lease_id": "lease-101"}),
		answer("I cannot see that lease."),
	}

	d, err := f.svc.RunAgent(context.Background(), "leasing",
		execution.NewChatMessage("prop-2", "tenant-9", "show lease 101", nil))
	require.NoError(t, err)

	require.Len(t, d.ToolCalls, 1)
	assert.False(t, d.ToolCalls[0].Success)
	assert.Equal(t, ActionRespond, d.Action)
	assert.InDelta(t, 0.1, d.Confidence, 1e-9)
	assert.True(t, d.RequiresApproval)
	assert.Equal(t, ledger.OutcomePending, d.Outcome)
}
