package surface

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func red(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	return img
}

func TestCanvasDrawScales(t *testing.T) {
	c := NewCanvas(64, 48)
	if !c.Blank() {
		t.Error("new canvas should be blank")
	}
	if err := c.Draw(red(640, 480)); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if c.Blank() || c.Draws() != 1 {
		t.Errorf("Blank() = %v, Draws() = %d after draw", c.Blank(), c.Draws())
	}
	got := c.Image().RGBAAt(32, 24)
	if got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel = %v, want red", got)
	}
}

func TestCanvasClear(t *testing.T) {
	c := NewCanvas(8, 8)
	c.Draw(red(8, 8))
	c.Clear()
	if !c.Blank() {
		t.Error("Blank() should be true after Clear")
	}
	if got := c.Image().RGBAAt(4, 4); got != (color.RGBA{}) {
		t.Errorf("pixel = %v, want transparent", got)
	}
}

func TestCanvasRejectsEmpty(t *testing.T) {
	c := NewCanvas(8, 8)
	if err := c.Draw(image.NewRGBA(image.Rectangle{})); err == nil {
		t.Error("Draw(empty) should fail")
	}
	if c.Draws() != 0 {
		t.Error("failed draw should not count")
	}
}

func TestCanvasJPEG(t *testing.T) {
	c := NewCanvas(16, 16)
	c.Draw(red(16, 16))
	b, err := c.JPEG(80)
	if err != nil || len(b) == 0 {
		t.Fatalf("JPEG() = %d bytes, %v", len(b), err)
	}
}

func TestMulti(t *testing.T) {
	a := NewCanvas(4, 4)
	var cleared, drawn int
	b := Func{
		ClearFunc: func() { cleared++ },
		DrawFunc: func(image.Image) error {
			drawn++
			return errors.New("closed")
		},
	}

	m := Multi(a, b)
	err := m.Draw(red(4, 4))
	if err == nil {
		t.Error("Multi should report the failing surface")
	}
	if a.Draws() != 1 || drawn != 1 {
		t.Errorf("draws = %d/%d, want both surfaces drawn", a.Draws(), drawn)
	}

	m.Clear()
	if !a.Blank() || cleared != 1 {
		t.Error("Clear should reach every surface")
	}
}
