package property

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func newExecutor(t *testing.T) (*tool.Executor, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	Seed(store, fixedNow)
	ts := NewToolset(store, func() time.Time { return fixedNow })
	ids := 0
	ts.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	var tools []tool.Tool
	for _, tl := range ts.Tools() {
		tools = append(tools, tl)
	}
	e, err := tool.NewExecutor(tools...)
	require.NoError(t, err)
	return e, store
}

func scope(id string) execution.Context {
	return execution.Context{ScopeID: id, TriggerType: execution.TriggerScheduled}
}

func TestTools_AllRegistered(t *testing.T) {
	e, _ := newExecutor(t)
	assert.Equal(t, []string{AssignVendor, GetLease, ListOverdueInvoices, SendPaymentReminder, TerminateLease}, e.Names())
}

func TestGetLease(t *testing.T) {
	e, _ := newExecutor(t)

	res := e.Execute(context.Background(), GetLease, map[string]any{"lease_id": "lease-101"}, scope("prop-1"))
	require.True(t, res.Success, res.Error)
	lease, ok := res.Output.(Lease)
	require.True(t, ok)
	assert.Equal(t, "Dana Ortiz", lease.TenantName)

	res = e.Execute(context.Background(), GetLease, map[string]any{"lease_id": "nope"}, scope("prop-1"))
	assert.False(t, res.Success)
	assert.Equal(t, ErrLeaseNotFound.Error(), res.Error)

	res = e.Execute(context.Background(), GetLease, map[string]any{"lease_id": "lease-101"}, scope("prop-2"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrOutOfScope.Error())
}

func TestListOverdueInvoices(t *testing.T) {
	e, _ := newExecutor(t)

	res := e.Execute(context.Background(), ListOverdueInvoices, map[string]any{}, scope("prop-1"))
	require.True(t, res.Success, res.Error)
	out := res.Output.(map[string]any)
	assert.Equal(t, 1, out["count"])
	invoices := out["invoices"].([]overdueInvoice)
	assert.Equal(t, "inv-9001", invoices[0].ID)
	assert.Equal(t, 12, invoices[0].DaysOverdue)

	res = e.Execute(context.Background(), ListOverdueInvoices, map[string]any{"min_days_overdue": 30}, scope("prop-1"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 0, res.Output.(map[string]any)["count"])
}

func TestSendPaymentReminder(t *testing.T) {
	e, store := newExecutor(t)

	res := e.Execute(context.Background(), SendPaymentReminder, map[string]any{
		"invoice_id": "inv-9001",
		"message":    "Your rent is 12 days overdue.",
	}, scope("prop-1"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Output.(map[string]any)["reminders_sent"])

	reminders := store.Reminders()
	require.Len(t, reminders, 1)
	assert.Equal(t, "email", reminders[0].Channel)
	assert.Equal(t, "tenant-2", reminders[0].TenantID)

	res = e.Execute(context.Background(), SendPaymentReminder, map[string]any{
		"invoice_id": "inv-9002",
		"message":    "hello",
	}, scope("prop-1"))
	assert.False(t, res.Success)
	assert.Equal(t, ErrInvoicePaid.Error(), res.Error)

	res = e.Execute(context.Background(), SendPaymentReminder, map[string]any{
		"invoice_id": "inv-9001",
		"message":    "hello",
		"channel":    "pigeon",
	}, scope("prop-1"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "channel")
}

func TestAssignVendor(t *testing.T) {
	e, store := newExecutor(t)

	res := e.Execute(context.Background(), AssignVendor, map[string]any{
		"vendor_id":   "vendor-plumb",
		"description": "Leaking pipe under sink in unit 202",
		"priority":    "urgent",
	}, scope("prop-1"))
	require.True(t, res.Success, res.Error)

	orders := store.WorkOrders("prop-1")
	require.Len(t, orders, 1)
	assert.Equal(t, "urgent", orders[0].Priority)
	assert.Equal(t, fixedNow, orders[0].CreatedAt)

	res = e.Execute(context.Background(), AssignVendor, map[string]any{
		"vendor_id":   "vendor-none",
		"description": "x",
	}, scope("prop-1"))
	assert.False(t, res.Success)
	assert.Equal(t, ErrVendorNotFound.Error(), res.Error)
}

func TestTerminateLease(t *testing.T) {
	e, store := newExecutor(t)
	args := map[string]any{"lease_id": "lease-202", "reason": "non-payment"}

	res := e.Execute(context.Background(), TerminateLease, args, scope("prop-1"))
	require.True(t, res.Success, res.Error)

	l, err := store.Lease("lease-202")
	require.NoError(t, err)
	assert.Equal(t, LeaseTerminated, l.Status)
	require.NotNil(t, l.TerminatedAt)
	assert.Equal(t, fixedNow, *l.TerminatedAt)

	res = e.Execute(context.Background(), TerminateLease, args, scope("prop-1"))
	assert.False(t, res.Success)
	assert.Equal(t, ErrLeaseTerminated.Error(), res.Error)
}

func TestInMemoryStore_ConcurrentReminders(t *testing.T) {
	store := NewInMemoryStore()
	Seed(store, fixedNow)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordReminder(Reminder{InvoiceID: "inv-9001"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	inv, err := store.Invoice("inv-9001")
	require.NoError(t, err)
	assert.Equal(t, 20, inv.RemindersSent)
	assert.Len(t, store.Reminders(), 20)
}
