package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when no status is tracked for a device ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceIDRequired is returned when a device ID is empty.
	ErrDeviceIDRequired = errors.New("device: id is required")

	// ErrInvalidRetention is returned when a prune window is not positive.
	ErrInvalidRetention = errors.New("device: retention must be positive")
)
