package web

import (
	"image"
	"sync"

	"github.com/teslashibe/go-framestream/pkg/frame"
	"github.com/teslashibe/go-framestream/pkg/hub"
)

// FrameSurface is a surface.Surface that broadcasts each drawn frame as JPEG.
type FrameSurface struct {
	hub     *hub.Hub
	encoder frame.Encoder

	mu   sync.RWMutex
	last []byte
}

// NewFrameSurface creates a surface broadcasting to h.
func NewFrameSurface(h *hub.Hub, quality int) *FrameSurface {
	return &FrameSurface{hub: h, encoder: frame.Encoder{Quality: quality}}
}

// Clear implements surface.Surface.
func (f *FrameSurface) Clear() {
	f.mu.Lock()
	f.last = nil
	f.mu.Unlock()
	f.hub.BroadcastBinary([]byte{})
}

// Draw implements surface.Surface.
func (f *FrameSurface) Draw(img image.Image) error {
	data, err := f.encoder.Encode(img)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.last = data
	f.mu.Unlock()
	f.hub.BroadcastBinary(data)
	return nil
}

// Last returns the most recent frame, nil after a Clear.
func (f *FrameSurface) Last() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}
