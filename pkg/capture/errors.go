package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for device failures.
var (
	// ErrPermissionDenied is returned when access to the device is refused.
	// It ends the fallback chain since relaxing constraints cannot help.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrNotFound is returned when no device matches.
	ErrNotFound = errors.New("capture: device not found")

	// ErrDeviceBusy is returned when the device exists but cannot be opened.
	ErrDeviceBusy = errors.New("capture: device busy")

	// ErrDeviceUnavailable is returned by Acquire when every attempt failed.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrClosed is returned when reading a closed device.
	ErrClosed = errors.New("capture: device closed")

	// ErrNoFrame is returned when the device produced an empty frame.
	ErrNoFrame = errors.New("capture: no frame")

	// ErrNoConstraints is returned by Acquire for an empty chain.
	ErrNoConstraints = errors.New("capture: empty constraint chain")
)

// AttemptError records one failed open.
type AttemptError struct {
	Constraints Constraints
	Err         error
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Constraints, e.Err)
}

// Unwrap returns the underlying error.
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// UnavailableError aggregates every failed attempt of an Acquire call.
// It matches ErrDeviceUnavailable and the classified Cause with errors.Is.
type UnavailableError struct {
	Attempts []*AttemptError
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrDeviceUnavailable.Error()
	}
	msgs := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		msgs[i] = a.Error()
	}
	return fmt.Sprintf("%v after %d attempts: %s",
		ErrDeviceUnavailable, len(e.Attempts), strings.Join(msgs, "; "))
}

// Unwrap exposes ErrDeviceUnavailable and the cause.
func (e *UnavailableError) Unwrap() []error {
	if cause := e.Cause(); cause != nil {
		return []error{ErrDeviceUnavailable, cause}
	}
	return []error{ErrDeviceUnavailable}
}

// Cause returns the most significant underlying error: a permission
// denial if any attempt hit one, otherwise the last attempt's error.
func (e *UnavailableError) Cause() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	for _, a := range e.Attempts {
		if errors.Is(a.Err, ErrPermissionDenied) {
			return a.Err
		}
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Kind classifies err as "permission_denied", "not_found", "busy",
// "unavailable" or "error". Used for metrics labels and status messages.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDeviceBusy):
		return "busy"
	case errors.Is(err, ErrDeviceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
