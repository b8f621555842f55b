package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrStateConflict indicates an illegal document status transition.
	ErrStateConflict = errors.New("state conflict")
	// ErrConflict indicates a concurrent-write conflict such as a revision
	// racing another against the same parent.
	ErrConflict = errors.New("conflict")
	// ErrNoChangeRequested indicates a revision request that removes and
	// reduces nothing.
	ErrNoChangeRequested = errors.New("no change requested")
	// ErrArithmeticInconsistency indicates stored and recomputed totals
	// disagree by more than the rounding tolerance of one currency unit.
	ErrArithmeticInconsistency = errors.New("arithmetic inconsistency")
	// ErrForbidden indicates the acting role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)
