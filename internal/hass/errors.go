package hass

import "errors"

// Domain-specific errors for controller connectivity.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnreachable is returned when no candidate address responded.
	ErrUnreachable = errors.New("hass: controller unreachable")

	// ErrAuthInvalid is returned when a reachable endpoint rejects the
	// credential. Terminal until the configuration changes.
	ErrAuthInvalid = errors.New("hass: invalid access token")

	// ErrNotConnected is returned when an operation requires a live
	// connection and none exists.
	ErrNotConnected = errors.New("hass: not connected")

	// ErrMissingToken is returned when no usable credential is configured.
	ErrMissingToken = errors.New("hass: access token missing or too short")

	// ErrRefreshFailed is returned when an on-demand snapshot fetch failed
	// on both the push channel and the REST fallback.
	ErrRefreshFailed = errors.New("hass: state refresh failed")

	// ErrCommandTimeout is returned when the controller does not answer a
	// request/response message in time.
	ErrCommandTimeout = errors.New("hass: command timed out")

	// ErrConnClosed is returned for requests issued against a connection
	// that has been closed.
	ErrConnClosed = errors.New("hass: connection closed")
)
