package property

import (
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps business records in maps guarded by a RWMutex.
// Values are copied in and out.
type InMemoryStore struct {
	mu         sync.RWMutex
	leases     map[string]Lease
	invoices   map[string]Invoice
	vendors    map[string]Vendor
	workOrders []WorkOrder
	reminders  []Reminder
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leases:   make(map[string]Lease),
		invoices: make(map[string]Invoice),
		vendors:  make(map[string]Vendor),
	}
}

func (s *InMemoryStore) PutLease(l Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases[l.ID] = l
}

func (s *InMemoryStore) PutInvoice(i Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[i.ID] = i
}

func (s *InMemoryStore) PutVendor(v Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[v.ID] = v
}

// Lease returns the lease with the given id.
func (s *InMemoryStore) Lease(id string) (Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leases[id]
	if !ok {
		return Lease{}, ErrLeaseNotFound
	}
	return l, nil
}

// Invoice returns the invoice with the given id.
func (s *InMemoryStore) Invoice(id string) (Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return i, nil
}

// Vendor returns the vendor with the given id.
func (s *InMemoryStore) Vendor(id string) (Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[id]
	if !ok {
		return Vendor{}, ErrVendorNotFound
	}
	return v, nil
}

// OverdueInvoices lists open invoices of a property that are at least
// minDays past due at asOf, most overdue first.
func (s *InMemoryStore) OverdueInvoices(propertyID string, asOf time.Time, minDays int) []Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Invoice
	for _, inv := range s.invoices {
		if inv.PropertyID != propertyID {
			continue
		}
		if d := inv.DaysOverdue(asOf); d > 0 && d >= minDays {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RecordReminder appends a reminder and bumps the invoice's reminder count.
func (s *InMemoryStore) RecordReminder(r Reminder) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[r.InvoiceID]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	if inv.Status == InvoicePaid {
		return Invoice{}, ErrInvoicePaid
	}
	inv.RemindersSent++
	s.invoices[inv.ID] = inv
	s.reminders = append(s.reminders, r)
	return inv, nil
}

// Reminders returns every reminder sent, in order.
func (s *InMemoryStore) Reminders() []Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reminder, len(s.reminders))
	copy(out, s.reminders)
	return out
}

// AddWorkOrder stores a work order. The vendor must exist.
func (s *InMemoryStore) AddWorkOrder(w WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[w.VendorID]; !ok {
		return ErrVendorNotFound
	}
	s.workOrders = append(s.workOrders, w)
	return nil
}

// WorkOrders returns the work orders of a property, in creation order.
func (s *InMemoryStore) WorkOrders(propertyID string) []WorkOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WorkOrder
	for _, w := range s.workOrders {
		if w.PropertyID == propertyID {
			out = append(out, w)
		}
	}
	return out
}

// TerminateLease marks a lease terminated. Terminating twice is an error.
func (s *InMemoryStore) TerminateLease(id string, at time.Time, reason string) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[id]
	if !ok {
		return Lease{}, ErrLeaseNotFound
	}
	if l.Status == LeaseTerminated {
		return Lease{}, ErrLeaseTerminated
	}
	l.Status = LeaseTerminated
	l.TerminatedAt = &at
	l.TerminationReason = reason
	s.leases[id] = l
	return l, nil
}
