package registry

import "errors"

var (
	// ErrNotFound is returned for operations on an unknown window id. The
	// registry is left untouched.
	ErrNotFound = errors.New("window not found")

	// ErrResourceExhausted is returned when the window-count or pixel
	// ceiling would be exceeded. Nothing is allocated.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalid is returned for out-of-range geometry, flags or titles.
	ErrInvalid = errors.New("invalid window parameters")

	// ErrOutOfBounds is returned when a blit does not fit the window's
	// buffer.
	ErrOutOfBounds = errors.New("region outside window buffer")

	// ErrInvariantViolation signals internal corruption. It is fatal.
	ErrInvariantViolation = errors.New("registry invariant violated")
)
