// Package capture acquires frames from a live capture device.
//
// Devices are opened through an Opener with a chain of progressively relaxed
// Constraints (see Acquire). The Device returned is a synchronous frame source.
package capture

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Facing modes.
const (
	FacingAny         = ""
	FacingEnvironment = "environment" // rear camera
	FacingUser        = "user"        // front camera
)

// Constraints is a declarative, best-effort request for device characteristics.
// Zero values leave a property unconstrained.
type Constraints struct {
	Facing    string `json:"facing,omitempty"`
	Width     int    `json:"width,omitempty"`  // ideal
	Height    int    `json:"height,omitempty"` // ideal
	Framerate int    `json:"framerate,omitempty"`
}

// Unconstrained reports whether c asks for nothing in particular.
func (c Constraints) Unconstrained() bool {
	return c == Constraints{}
}

func (c Constraints) String() string {
	if c.Unconstrained() {
		return "any camera"
	}
	var parts []string
	switch c.Facing {
	case FacingAny:
		parts = append(parts, "any camera")
	default:
		parts = append(parts, c.Facing+" camera")
	}
	if c.Width > 0 && c.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	if c.Framerate > 0 {
		parts = append(parts, fmt.Sprintf("@%dfps", c.Framerate))
	}
	return strings.Join(parts, " ")
}

// DefaultChain returns the standard fallback order:
// rear camera at w x h (and fps if set), any camera at w x h, any camera.
func DefaultChain(w, h, fps int) []Constraints {
	return Chain(FacingEnvironment, w, h, fps)
}

// Chain is DefaultChain with a chosen facing mode for the first attempt.
// With no facing mode the first two attempts are merged.
func Chain(facing string, w, h, fps int) []Constraints {
	var chain []Constraints
	if facing != FacingAny {
		chain = append(chain, Constraints{Facing: facing, Width: w, Height: h, Framerate: fps})
	}
	chain = append(chain,
		Constraints{Width: w, Height: h},
		Constraints{},
	)
	return chain
}

// Mode is what the device actually negotiated.
type Mode struct {
	Name      string  `json:"name"`
	Facing    string  `json:"facing,omitempty"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Framerate float64 `json:"framerate"`
}

func (m Mode) String() string {
	return fmt.Sprintf("%s %dx%d@%.0f", m.Name, m.Width, m.Height, m.Framerate)
}

// Device is an open capture device.
type Device interface {
	// Read returns the current frame. It blocks for at most one frame interval.
	Read() (image.Image, error)

	// Mode returns the negotiated capture mode.
	Mode() Mode

	// Close releases the device. Further reads return ErrClosed.
	Close() error
}

// Opener opens devices matching constraints.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, c Constraints) (Device, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, c Constraints) (Device, error) {
	return f(ctx, c)
}
