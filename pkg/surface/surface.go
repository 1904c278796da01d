// Package surface provides draw targets for processed frames.
package surface

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

// Surface is where processed frames are rendered.
type Surface interface {
	// Clear erases the surface.
	Clear()

	// Draw replaces the surface contents with img scaled to fit.
	Draw(img image.Image) error
}

// Canvas is an in-memory RGBA surface of fixed size.
type Canvas struct {
	mu    sync.RWMutex
	img   *image.RGBA
	draws uint64
	blank bool
}

// NewCanvas creates a w x h canvas.
func NewCanvas(w, h int) *Canvas {
	return &Canvas{
		img:   image.NewRGBA(image.Rect(0, 0, w, h)),
		blank: true,
	}
}

// Clear implements Surface.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	c.blank = true
}

// Draw implements Surface. The image is stretched to the canvas size.
func (c *Canvas) Draw(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return errors.New("surface: empty image")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	draw.ApproxBiLinear.Scale(c.img, c.img.Bounds(), img, img.Bounds(), draw.Src, nil)
	c.draws++
	c.blank = false
	return nil
}

// Size returns the canvas dimensions.
func (c *Canvas) Size() image.Point {
	return c.img.Bounds().Size()
}

// Blank reports whether nothing has been drawn since the last Clear.
func (c *Canvas) Blank() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blank
}

// Draws returns the number of frames drawn.
func (c *Canvas) Draws() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draws
}

// Image returns a copy of the current contents.
func (c *Canvas) Image() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// JPEG encodes the current contents.
func (c *Canvas) JPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.Image(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Multi returns a Surface that draws to every surface in order.
func Multi(surfaces ...Surface) Surface {
	return multi(surfaces)
}

type multi []Surface

func (m multi) Clear() {
	for _, s := range m {
		s.Clear()
	}
}

func (m multi) Draw(img image.Image) error {
	var errs []error
	for _, s := range m {
		if err := s.Draw(img); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a pair of functions to Surface. Nil functions are no-ops.
type Func struct {
	ClearFunc func()
	DrawFunc  func(img image.Image) error
}

// Clear implements Surface.
func (f Func) Clear() {
	if f.ClearFunc != nil {
		f.ClearFunc()
	}
}

// Draw implements Surface.
func (f Func) Draw(img image.Image) error {
	if f.DrawFunc != nil {
		return f.DrawFunc(img)
	}
	return nil
}
