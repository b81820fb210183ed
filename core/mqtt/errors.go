package mqtt

import "errors"

var (
	// ErrUnknownAction is returned for commands with an unsupported action.
	ErrUnknownAction = errors.New("unknown command action")
	// ErrMalformedCommand is returned for commands missing a required field.
	ErrMalformedCommand = errors.New("malformed command")
)
