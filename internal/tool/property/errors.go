package property

import "errors"

var (
	ErrLeaseNotFound   = errors.New("lease not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrVendorNotFound  = errors.New("vendor not found")
	ErrLeaseTerminated = errors.New("lease already terminated")
	ErrInvoicePaid     = errors.New("invoice already paid")
	ErrOutOfScope      = errors.New("record belongs to a different property")
)
