package stream

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-framestream/pkg/capture"
	"github.com/teslashibe/go-framestream/pkg/channel"
)

// Sentinel errors.
var (
	// ErrInsecureContext is returned by Start when the channel endpoint is
	// neither TLS nor local.
	ErrInsecureContext = errors.New("stream: insecure context")

	// ErrChannelDisconnected is returned by Start while the channel is down
	// and is the reason recorded when a disconnect stops the session.
	ErrChannelDisconnected = errors.New("stream: channel disconnected")

	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("stream: already running")

	// ErrLoopNotRunning is returned when commands are sent after Run returned.
	ErrLoopNotRunning = errors.New("stream: session loop not running")

	// ErrEncode wraps per-frame encode failures.
	ErrEncode = errors.New("stream: encode failed")

	// ErrChannelError is matched by every *ServerError.
	ErrChannelError = errors.New("stream: channel error")

	// ErrResponseTimeout is recorded when a response does not arrive in time.
	ErrResponseTimeout = errors.New("stream: response timeout")
)

// ServerError is an error reported by the processing service.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("stream: server error: %s", e.Message)
}

// Unwrap lets errors.Is match ErrChannelError.
func (e *ServerError) Unwrap() error {
	return ErrChannelError
}

// Describe returns a short user-facing message for err.
func Describe(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsecureContext):
		return "Camera streaming needs a secure (wss://) or local connection."
	case errors.Is(err, ErrChannelDisconnected), errors.Is(err, channel.ErrNotConnected):
		return "Not connected to the server."
	case errors.Is(err, ErrAlreadyRunning):
		return "The camera is already running."
	case errors.Is(err, capture.ErrDeviceUnavailable),
		errors.Is(err, capture.ErrPermissionDenied),
		errors.Is(err, capture.ErrNotFound),
		errors.Is(err, capture.ErrDeviceBusy):
		return capture.Describe(err)
	case errors.As(err, &serverErr):
		return "Server error: " + serverErr.Message
	case errors.Is(err, ErrResponseTimeout):
		return "The server did not answer in time."
	case errors.Is(err, ErrEncode):
		return "A frame could not be encoded."
	default:
		return "Error: " + err.Error()
	}
}
