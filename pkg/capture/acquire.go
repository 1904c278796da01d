package capture

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/go-framestream/pkg/metrics"
)

// Acquire opens the first device that satisfies an entry of chain, in order.
// A permission denial stops the chain early. When nothing opens, the returned
// error is an *UnavailableError listing every attempt.
func Acquire(ctx context.Context, o Opener, chain []Constraints, logger *slog.Logger) (Device, Constraints, error) {
	if len(chain) == 0 {
		return nil, Constraints{}, ErrNoConstraints
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "capture.acquire")

	var failed []*AttemptError
	for i, c := range chain {
		if err := ctx.Err(); err != nil {
			return nil, Constraints{}, err
		}

		dev, err := o.Open(ctx, c)
		metrics.RecordCaptureAttempt(Kind(err))
		if err == nil {
			if i > 0 {
				logger.Info("fallback constraints succeeded",
					"attempt", i+1,
					"constraints", c.String(),
					"mode", dev.Mode().String(),
				)
			}
			return dev, c, nil
		}

		failed = append(failed, &AttemptError{Constraints: c, Err: err})
		logger.Warn("capture attempt failed",
			"attempt", i+1,
			"constraints", c.String(),
			"kind", Kind(err),
			"error", err,
		)

		if errors.Is(err, ErrPermissionDenied) {
			break
		}
	}

	return nil, Constraints{}, &UnavailableError{Attempts: failed}
}

// Describe returns a short user-facing message for a capture error.
func Describe(err error) string {
	switch Kind(err) {
	case "":
		return ""
	case "permission_denied":
		return "Camera access was denied. Grant permission and start again."
	case "not_found":
		return "No camera was found."
	case "busy":
		return "The camera is in use by another application."
	case "unavailable":
		return "No camera could be opened."
	default:
		return "Camera error: " + err.Error()
	}
}
