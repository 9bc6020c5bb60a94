package transition

import "errors"

var (
	// ErrNotAcknowledged is recorded when the device answered SetMode with
	// set_result=false or an empty result.
	ErrNotAcknowledged = errors.New("transition: command not acknowledged")

	// ErrNilCommand is recorded when Execute is called without a command.
	ErrNilCommand = errors.New("transition: nil command")

	// ErrModeMissing is returned by a verification attempt whose snapshot
	// has no mode field.
	ErrModeMissing = errors.New("transition: mode query result has no mode")
)
