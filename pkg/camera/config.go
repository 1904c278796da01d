// Package camera provides runtime-configurable stream settings.
// The session reads them for every frame, so changes apply on the next capture.
package camera

import (
	"fmt"

	"github.com/teslashibe/go-framestream/pkg/frame"
)

// Config holds the tunable frame parameters.
// These can be modified via the dashboard camera API at runtime.
type Config struct {
	// === Resolution ===
	Width     int `json:"width"`     // Target frame width in pixels
	Height    int `json:"height"`    // Target frame height in pixels
	Framerate int `json:"framerate"` // Ideal capture FPS requested from the device
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// Facing selects the preferred camera for the first constraint attempt.
	// Values: "environment", "user", "" (any)
	Facing string `json:"facing"`

	// === Digital Zoom ===
	// ZoomLevel is a centred crop factor (1.0 to 4.0) applied before resampling.
	ZoomLevel float64 `json:"zoom_level"`
}

// Limits for the target frame.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
	MaxZoom      = 4.0
)

// DefaultConfig returns the configuration the browser client used:
// 640x480 from the rear camera at quality 80.
func DefaultConfig() Config {
	return Config{
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,
		Facing:    "environment",
		ZoomLevel: 1.0,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	switch c.Facing {
	case "", "environment", "user":
	default:
		errors = append(errors, "facing must be environment, user, or empty")
	}

	if c.ZoomLevel < 1.0 || c.ZoomLevel > MaxZoom {
		errors = append(errors, "zoom_level must be between 1.0 and 4.0")
	}

	return errors
}

// Capabilities describes the accepted ranges.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"min_width":     MinWidth,
		"min_height":    MinHeight,
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"max_zoom":      MaxZoom,
		"facing":        []string{"environment", "user", ""},
		"presets":       PresetNames(),
	}
}

// Encoder returns the frame encoder for this configuration.
func (c Config) Encoder() frame.Encoder {
	return frame.Encoder{
		Width:   c.Width,
		Height:  c.Height,
		Quality: c.Quality,
		Zoom:    c.ZoomLevel,
	}
}
