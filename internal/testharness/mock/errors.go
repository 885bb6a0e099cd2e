package mock

import "errors"

// Mock package errors.
var (
	// ErrDeviceNotConnected is returned when operating on a closed device.
	ErrDeviceNotConnected = errors.New("device not connected")

	// ErrInvalidRule is returned for a rule that cannot be compiled.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidScript is returned when a script file cannot be parsed.
	ErrInvalidScript = errors.New("invalid script")
)
