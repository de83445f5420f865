package device

import "errors"

// Domain errors. Callers match with errors.Is; the wrapped message carries
// the offending id or value.
var (
	// ErrNotFound is returned for an unknown device (or timer) id.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for out-of-range or malformed input.
	ErrValidation = errors.New("invalid request")

	// ErrTypeMismatch is returned when an operation does not apply to the device kind,
	// e.g. a brightness command on a discrete light.
	ErrTypeMismatch = errors.New("unsupported for device kind")

	// ErrConfiguration is returned when re-configuring a device with an incompatible kind.
	ErrConfiguration = errors.New("incompatible device configuration")

	// ErrBackend wraps failures reported by the output backend.
	ErrBackend = errors.New("backend failure")

	// ErrSuperseded is reported by a transition that stopped because a newer
	// write to the same device (or shutdown) took over.
	ErrSuperseded = errors.New("transition superseded")
)
