package apperrors

import "errors"

// Sentinel errors for the error kinds the services surface. Handlers map
// these to HTTP status codes in the fiber error handler.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrSessionUnavailable = errors.New("session not found or not connected")
	ErrUpstreamFailure    = errors.New("upstream engine failure")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
