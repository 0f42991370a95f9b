package ledger

import (
	"fmt"

	"github.com/mgpai22/equibasket/datum"
)

// StaleInputError means an input of the transaction was already spent.
// Rebuild from a fresh snapshot and try again.
type StaleInputError struct {
	Ref datum.OutputRef
}

// ErrStaleInput matches any StaleInputError.
var ErrStaleInput = &StaleInputError{}

func (e *StaleInputError) Error() string {
	return fmt.Sprintf("input %s is no longer unspent", e.Ref)
}

func (e *StaleInputError) Is(target error) bool {
	_, ok := target.(*StaleInputError)
	return ok
}

// SubmitError is a ledger rejection, carried verbatim.
type SubmitError struct {
	Reason string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit rejected: %s: %v", e.Reason, e.Err)
	}
	return "submit rejected: " + e.Reason
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
