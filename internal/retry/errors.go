package retry

import "errors"

// Sentinel errors returned by Do.
var (
	// ErrExhausted is returned when every attempt in the schedule failed.
	// The last attempt's error is wrapped alongside it.
	ErrExhausted = errors.New("retry: attempts exhausted")

	// ErrNilOperation is returned when Do is called without an operation.
	ErrNilOperation = errors.New("retry: nil operation")
)
