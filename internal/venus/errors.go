package venus

import "errors"

// Domain errors for the Venus device gateway.
var (
	// ErrNoResponse is returned when no matching reply arrived before the
	// request deadline, or the datagram could not be sent.
	ErrNoResponse = errors.New("venus: no response from device")

	// ErrEmptyResult is returned when the device replied with an empty
	// or missing result object.
	ErrEmptyResult = errors.New("venus: empty result")

	// ErrMalformedResponse is returned when a reply cannot be decoded or
	// lacks a required field.
	ErrMalformedResponse = errors.New("venus: malformed response")

	// ErrDeviceError is returned when the device answered with a JSON-RPC
	// error object.
	ErrDeviceError = errors.New("venus: device returned error")

	// ErrInvalidCommand is returned by SetMode for a command that fails
	// validation. Nothing is sent to the device.
	ErrInvalidCommand = errors.New("venus: invalid mode command")
)
