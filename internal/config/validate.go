package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that the configuration is usable.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if err := validateWSURL(c.Channel.URL); err != nil {
		errs = append(errs, fmt.Errorf("channel.url: %w", err))
	}
	if c.Channel.ReconnectMin <= 0 || c.Channel.ReconnectMax < c.Channel.ReconnectMin {
		errs = append(errs, errors.New("channel.reconnect_min must be > 0 and <= channel.reconnect_max"))
	}
	if c.Channel.BreakerFailures < 1 {
		errs = append(errs, errors.New("channel.breaker_failures must be >= 1"))
	}

	if c.Capture.Framerate < 0 {
		errs = append(errs, errors.New("capture.framerate must not be negative"))
	}
	switch c.Capture.Facing {
	case "", "environment", "user":
	default:
		errs = append(errs, fmt.Errorf("capture.facing must be environment, user or empty, got %q", c.Capture.Facing))
	}
	if c.Capture.MaxProbe < c.Capture.Device {
		errs = append(errs, errors.New("capture.max_probe must be >= capture.device"))
	}

	switch c.Stream.Protocol {
	case "simple", "detection":
	default:
		errs = append(errs, fmt.Errorf("stream.protocol must be simple or detection, got %q", c.Stream.Protocol))
	}
	switch c.Stream.Pacing {
	case "response":
	case "interval":
		if c.Stream.Interval <= 0 {
			errs = append(errs, errors.New("stream.interval must be > 0 with interval pacing"))
		}
	default:
		errs = append(errs, fmt.Errorf("stream.pacing must be response or interval, got %q", c.Stream.Pacing))
	}
	if c.Stream.ResponseTimeout < 0 || c.Stream.OrphanTimeout < 0 {
		errs = append(errs, errors.New("stream response and orphan timeouts must not be negative"))
	}
	if c.Stream.MaxFPS <= 0 {
		errs = append(errs, errors.New("stream.max_fps must be > 0"))
	}
	if c.Stream.TargetWidth < 16 || c.Stream.TargetHeight < 16 {
		errs = append(errs, errors.New("stream target size must be at least 16x16"))
	}
	if c.Stream.Quality < 1 || c.Stream.Quality > 100 {
		errs = append(errs, errors.New("stream.quality must be between 1 and 100"))
	}
	if c.Stream.SurfaceWidth < 1 || c.Stream.SurfaceHeight < 1 {
		errs = append(errs, errors.New("stream surface size must be positive"))
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port < 1 || c.Dashboard.Port > 65535) {
		errs = append(errs, errors.New("dashboard.port must be between 1 and 65535"))
	}
	if c.Loopback.Port < 1 || c.Loopback.Port > 65535 {
		errs = append(errs, errors.New("loopback.port must be between 1 and 65535"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func validateWSURL(raw string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host required")
	}
	return nil
}
