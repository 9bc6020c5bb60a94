package poller

import "errors"

var (
	// ErrQueueFull is returned by Submit when the mode request queue is full.
	ErrQueueFull = errors.New("poller: mode request queue full")

	// ErrInvalidRequest is returned when a mode request cannot be parsed or
	// describes an invalid command.
	ErrInvalidRequest = errors.New("poller: invalid mode request")

	// ErrTransitionsDisabled is returned by Submit when no transition
	// controller is configured.
	ErrTransitionsDisabled = errors.New("poller: mode transitions not configured")
)
