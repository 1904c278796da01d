package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// MockOpener implements Opener for testing.
type MockOpener struct {
	// OpenFunc is called when Open is invoked. Defaults to a fresh MockDevice.
	OpenFunc func(ctx context.Context, c Constraints) (Device, error)

	mu    sync.Mutex
	calls []Constraints
}

// Open implements Opener.
func (m *MockOpener) Open(ctx context.Context, c Constraints) (Device, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()

	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, c)
	}
	w, h := c.Width, c.Height
	if w == 0 || h == 0 {
		w, h = 640, 480
	}
	return NewMockDevice(w, h), nil
}

// Calls returns the constraints of every Open call.
func (m *MockOpener) Calls() []Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Constraints, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockDevice implements Device for testing.
type MockDevice struct {
	// ReadFunc is called when Read is invoked. Defaults to a gray frame.
	ReadFunc func() (image.Image, error)

	mode Mode

	mu     sync.Mutex
	reads  int
	closed bool
}

// NewMockDevice creates a device producing solid w x h frames.
func NewMockDevice(w, h int) *MockDevice {
	return &MockDevice{
		mode: Mode{Name: "mock", Width: w, Height: h, Framerate: 30},
	}
}

// Read implements Device.
func (d *MockDevice) Read() (image.Image, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.reads++
	d.mu.Unlock()

	if d.ReadFunc != nil {
		return d.ReadFunc()
	}
	img := image.NewUniform(color.Gray{Y: 128})
	return &boundedUniform{Uniform: img, r: image.Rect(0, 0, d.mode.Width, d.mode.Height)}, nil
}

// Mode implements Device.
func (d *MockDevice) Mode() Mode {
	return d.mode
}

// Close implements Device.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Reads returns the number of successful reads.
func (d *MockDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Closed reports whether Close was called.
func (d *MockDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type boundedUniform struct {
	*image.Uniform
	r image.Rectangle
}

func (b *boundedUniform) Bounds() image.Rectangle { return b.r }
