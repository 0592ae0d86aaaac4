package domain

import "errors"

// Error taxonomy shared by every component. Services wrap these with context
// via fmt.Errorf("...: %w", ErrX); callers match with errors.Is.
var (
	// ErrNotFound indicates a referenced token, prediction or data source is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates malformed or out-of-range values, or non-positive limits.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState indicates an illegal lifecycle transition or a guarded computation.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
)
