package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("decision not found")
	ErrConflict = errors.New("decision already resolved")
)

// ConflictError reports a transition requested on a decision that already
// reached the other terminal outcome.
type ConflictError struct {
	ID        string
	Current   Outcome
	Requested Outcome
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("decision %s is %s, cannot mark %s", e.ID, e.Current, e.Requested)
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
