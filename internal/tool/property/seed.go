package property

import "time"

// Seed fills a store with a small demo portfolio: property "prop-1" with two
// leases, one overdue invoice, and two vendors.
func Seed(s *InMemoryStore, now time.Time) {
	month := 30 * 24 * time.Hour
	s.PutLease(Lease{
		ID: "lease-101", PropertyID: "prop-1", Unit: "101",
		TenantID: "tenant-1", TenantName: "Dana Ortiz", MonthlyRent: 1450,
		StartDate: now.Add(-6 * month), EndDate: now.Add(6 * month), Status: LeaseActive,
	})
	s.PutLease(Lease{
		ID: "lease-202", PropertyID: "prop-1", Unit: "202",
		TenantID: "tenant-2", TenantName: "Sam Lee", MonthlyRent: 1720,
		StartDate: now.Add(-11 * month), EndDate: now.Add(month), Status: LeaseActive,
	})
	s.PutInvoice(Invoice{
		ID: "inv-9001", LeaseID: "lease-202", PropertyID: "prop-1", TenantID: "tenant-2",
		Amount: 1720, DueDate: now.Add(-12 * 24 * time.Hour), Status: InvoiceOpen,
	})
	s.PutInvoice(Invoice{
		ID: "inv-9002", LeaseID: "lease-101", PropertyID: "prop-1", TenantID: "tenant-1",
		Amount: 1450, DueDate: now.Add(-40 * 24 * time.Hour), Status: InvoicePaid,
	})
	s.PutVendor(Vendor{ID: "vendor-plumb", Name: "Pipeline Plumbing", Trade: "plumbing"})
	s.PutVendor(Vendor{ID: "vendor-elec", Name: "Bright Spark Electric", Trade: "electrical"})
}
