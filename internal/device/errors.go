package device

import "errors"

// Domain-specific errors for the device catalog.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when a device id has no catalog record.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose id is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrEntityBound is returned when binding an entity that is already
	// bound to another device with a real room assignment.
	ErrEntityBound = errors.New("device: entity already bound")

	// ErrNotBound is returned for mirror operations on an unbound device.
	ErrNotBound = errors.New("device: not bound to an entity")

	// ErrInvalidDevice is returned when a device record fails validation.
	ErrInvalidDevice = errors.New("device: invalid device")
)
