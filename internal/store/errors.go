package store

import "errors"

// Failure taxonomy shared by all core operations. The API layer maps
// these to HTTP status codes; anything else propagates as an opaque
// internal failure.
var (
	// ErrNotFound covers both "entity absent" and "entity owned by
	// another user". The two cases are intentionally indistinguishable
	// so that the existence of another user's resource never leaks.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks a malformed or out-of-enum field value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState marks an illegal lifecycle transition request.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict marks a duplicate where at most one row may exist,
	// such as a second settings row for a device.
	ErrConflict = errors.New("conflict")
)
