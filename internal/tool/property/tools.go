package property

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/google/uuid"
)

// Tool names.
const (
	GetLease            = "get_lease"
	ListOverdueInvoices = "list_overdue_invoices"
	SendPaymentReminder = "send_payment_reminder"
	AssignVendor        = "assign_vendor"
	TerminateLease      = "terminate_lease"
)

// businessStore is the subset of the store the tools need.
type businessStore interface {
	Lease(id string) (Lease, error)
	Invoice(id string) (Invoice, error)
	Vendor(id string) (Vendor, error)
	OverdueInvoices(propertyID string, asOf time.Time, minDays int) []Invoice
	RecordReminder(r Reminder) (Invoice, error)
	AddWorkOrder(w WorkOrder) error
	TerminateLease(id string, at time.Time, reason string) (Lease, error)
}

// Toolset builds the property tools over one store.
type Toolset struct {
	store businessStore
	now   func() time.Time
	newID func() string
}

// NewToolset creates a Toolset. A nil clock means time.Now.
func NewToolset(store businessStore, now func() time.Time) *Toolset {
	if now == nil {
		now = time.Now
	}
	return &Toolset{
		store: store,
		now:   now,
		newID: uuid.NewString,
	}
}

// Tools returns every property tool, keyed by name for lookup from definitions.
func (ts *Toolset) Tools() map[string]tool.Tool {
	all := []tool.Tool{
		ts.getLease(),
		ts.listOverdueInvoices(),
		ts.sendPaymentReminder(),
		ts.assignVendor(),
		ts.terminateLease(),
	}
	out := make(map[string]tool.Tool, len(all))
	for _, t := range all {
		out[t.Name] = t
	}
	return out
}

// inScope rejects records of a property other than the run's scope.
func inScope(ec execution.Context, propertyID string) error {
	if propertyID != ec.ScopeID {
		return fmt.Errorf("%w: %s", ErrOutOfScope, propertyID)
	}
	return nil
}

type getLeaseRequest struct {
	LeaseID string `json:"lease_id"`
}

func (ts *Toolset) getLease() tool.Tool {
	return tool.Tool{
		Name:        GetLease,
		Description: "Fetch a lease of the current property by id, including tenant, rent and term.",
		Params: []tool.Field{
			{Name: "lease_id", Type: tool.TypeString, Required: true, Description: "Lease identifier"},
		},
		Handler: func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
			req, err := tool.Decode[getLeaseRequest](in)
			if err != nil {
				return nil, err
			}
			l, err := ts.store.Lease(req.LeaseID)
			if err != nil {
				return nil, err
			}
			if err := inScope(ec, l.PropertyID); err != nil {
				return nil, err
			}
			return l, nil
		},
	}
}

type listOverdueRequest struct {
	MinDaysOverdue int `json:"min_days_overdue"`
	Offset         int `json:"offset"`
	Limit          int `json:"limit"`
}

type overdueInvoice struct {
	Invoice
	DaysOverdue int `json:"days_overdue"`
}

func (ts *Toolset) listOverdueInvoices() tool.Tool {
	return tool.Tool{
		Name:        ListOverdueInvoices,
		Description: "List open invoices of the current property that are past due, most overdue first.",
		Params: []tool.Field{
			{Name: "min_days_overdue", Type: tool.TypeInteger, Description: "Only include invoices at least this many days overdue"},
			{Name: "offset", Type: tool.TypeInteger, Description: "Number of invoices to skip"},
			{Name: "limit", Type: tool.TypeInteger, Description: "Maximum invoices to return, 25 when omitted"},
		},
		Handler: func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
			req, err := tool.Decode[listOverdueRequest](in)
			if err != nil {
				return nil, err
			}
			now := ts.now()
			invoices, info := page(ts.store.OverdueInvoices(ec.ScopeID, now, req.MinDaysOverdue), req.Offset, req.Limit)
			out := make([]overdueInvoice, 0, len(invoices))
			for _, inv := range invoices {
				out = append(out, overdueInvoice{Invoice: inv, DaysOverdue: inv.DaysOverdue(now)})
			}
			return map[string]any{
				"invoices":    out,
				"count":       len(out),
				"total_count": info.TotalCount,
				"truncated":   info.Truncated,
			}, nil
		},
	}
}

type sendReminderRequest struct {
	InvoiceID string `json:"invoice_id"`
	Channel   string `json:"channel"`
	Message   string `json:"message"`
}

func (ts *Toolset) sendPaymentReminder() tool.Tool {
	return tool.Tool{
		Name:        SendPaymentReminder,
		Description: "Send a payment reminder to the tenant of an overdue invoice.",
		Params: []tool.Field{
			{Name: "invoice_id", Type: tool.TypeString, Required: true},
			{Name: "channel", Type: tool.TypeString, Enum: []string{"email", "sms", "letter"}, Description: "Delivery channel, email when omitted"},
			{Name: "message", Type: tool.TypeString, Required: true, Description: "Reminder text sent to the tenant"},
		},
		Handler: func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
			req, err := tool.Decode[sendReminderRequest](in)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(req.Message) == "" {
				return nil, fmt.Errorf("%w: message is empty", tool.ErrInvalidInput)
			}
			inv, err := ts.store.Invoice(req.InvoiceID)
			if err != nil {
				return nil, err
			}
			if err := inScope(ec, inv.PropertyID); err != nil {
				return nil, err
			}
			if req.Channel == "" {
				req.Channel = "email"
			}
			r := Reminder{
				ID:        ts.newID(),
				InvoiceID: inv.ID,
				TenantID:  inv.TenantID,
				Channel:   req.Channel,
				Message:   req.Message,
				SentAt:    ts.now(),
			}
			updated, err := ts.store.RecordReminder(r)
			if err != nil {
				return nil, err
			}
			return map[string]any{"reminder": r, "reminders_sent": updated.RemindersSent}, nil
		},
	}
}

type assignVendorRequest struct {
	VendorID    string `json:"vendor_id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

func (ts *Toolset) assignVendor() tool.Tool {
	return tool.Tool{
		Name:        AssignVendor,
		Description: "Create a work order for the current property and assign it to a vendor.",
		Params: []tool.Field{
			{Name: "vendor_id", Type: tool.TypeString, Required: true},
			{Name: "description", Type: tool.TypeString, Required: true, Description: "What needs to be done"},
			{Name: "priority", Type: tool.TypeString, Enum: []string{"low", "normal", "urgent"}},
		},
		Handler: func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
			req, err := tool.Decode[assignVendorRequest](in)
			if err != nil {
				return nil, err
			}
			v, err := ts.store.Vendor(req.VendorID)
			if err != nil {
				return nil, err
			}
			if req.Priority == "" {
				req.Priority = "normal"
			}
			w := WorkOrder{
				ID:          ts.newID(),
				PropertyID:  ec.ScopeID,
				VendorID:    v.ID,
				Description: req.Description,
				Priority:    req.Priority,
				CreatedAt:   ts.now(),
			}
			if err := ts.store.AddWorkOrder(w); err != nil {
				return nil, err
			}
			return map[string]any{"work_order": w, "vendor": v}, nil
		},
	}
}

type terminateLeaseRequest struct {
	LeaseID string `json:"lease_id"`
	Reason  string `json:"reason"`
}

func (ts *Toolset) terminateLease() tool.Tool {
	return tool.Tool{
		Name:        TerminateLease,
		Description: "Terminate an active lease of the current property.",
		Params: []tool.Field{
			{Name: "lease_id", Type: tool.TypeString, Required: true},
			{Name: "reason", Type: tool.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
			req, err := tool.Decode[terminateLeaseRequest](in)
			if err != nil {
				return nil, err
			}
			l, err := ts.store.Lease(req.LeaseID)
			if err != nil {
				return nil, err
			}
			if err := inScope(ec, l.PropertyID); err != nil {
				return nil, err
			}
			terminated, err := ts.store.TerminateLease(l.ID, ts.now(), req.Reason)
			if err != nil {
				return nil, err
			}
			return terminated, nil
		},
	}
}
