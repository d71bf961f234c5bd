package protocol

import "errors"

var (
	// ErrMalformed indicates a recognized command with invalid arguments.
	ErrMalformed = errors.New("malformed message")
	// ErrLineTooLong indicates an inbound line exceeded the maximum length
	// and was discarded.
	ErrLineTooLong = errors.New("line too long")
)
