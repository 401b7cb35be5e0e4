// Package property provides the property-management tools agents act through,
// backed by a business store.
package property

import "time"

// LeaseStatus is the lifecycle state of a lease.
type LeaseStatus string

const (
	LeaseActive     LeaseStatus = "active"
	LeaseTerminated LeaseStatus = "terminated"
)

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceOpen InvoiceStatus = "open"
	InvoicePaid InvoiceStatus = "paid"
)

// Lease binds a tenant to a unit of a property.
type Lease struct {
	ID                string      `json:"id"`
	PropertyID        string      `json:"property_id"`
	Unit              string      `json:"unit"`
	TenantID          string      `json:"tenant_id"`
	TenantName        string      `json:"tenant_name"`
	MonthlyRent       float64     `json:"monthly_rent"`
	StartDate         time.Time   `json:"start_date"`
	EndDate           time.Time   `json:"end_date"`
	Status            LeaseStatus `json:"status"`
	TerminatedAt      *time.Time  `json:"terminated_at,omitempty"`
	TerminationReason string      `json:"termination_reason,omitempty"`
}

// Invoice is a rent charge against a lease.
type Invoice struct {
	ID            string        `json:"id"`
	LeaseID       string        `json:"lease_id"`
	PropertyID    string        `json:"property_id"`
	TenantID      string        `json:"tenant_id"`
	Amount        float64       `json:"amount"`
	DueDate       time.Time     `json:"due_date"`
	Status        InvoiceStatus `json:"status"`
	RemindersSent int           `json:"reminders_sent"`
}

// DaysOverdue returns how many whole days past due the invoice is at asOf.
func (i Invoice) DaysOverdue(asOf time.Time) int {
	if i.Status != InvoiceOpen || !asOf.After(i.DueDate) {
		return 0
	}
	return int(asOf.Sub(i.DueDate).Hours() / 24)
}

// Vendor is a contractor that can be assigned maintenance work.
type Vendor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Trade string `json:"trade"`
}

// WorkOrder is a maintenance job assigned to a vendor.
type WorkOrder struct {
	ID          string    `json:"id"`
	PropertyID  string    `json:"property_id"`
	VendorID    string    `json:"vendor_id"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reminder is a payment reminder sent to a tenant.
type Reminder struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	TenantID  string    `json:"tenant_id"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}
