// Package frame resamples captured images to the stream target size and
// converts them to and from JPEG data URLs.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // processed frames may come back as PNG
	"strings"

	"golang.org/x/image/draw"
)

// DataURLPrefix prefixes every outbound frame.
const DataURLPrefix = "data:image/jpeg;base64,"

// DefaultQuality matches the browser client's canvas.toDataURL quality of 0.8.
const DefaultQuality = 80

var (
	ErrEmptyFrame     = errors.New("frame: empty image")
	ErrInvalidDataURL = errors.New("frame: invalid data url")
)

// Encoder turns captured images into JPEG bytes at a fixed target size.
// A zero Width or Height keeps the source size.
type Encoder struct {
	Width   int
	Height  int
	Quality int
	Zoom    float64 // centred crop factor, values <= 1 disable it
}

// Encode resamples img to the target size and encodes it as JPEG.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	var src image.Image = img
	switch {
	case e.Width > 0 && e.Height > 0:
		src = FitZoom(img, e.Width, e.Height, e.Zoom)
	case e.Zoom > 1:
		b := img.Bounds()
		src = FitZoom(img, b.Dx(), b.Dy(), e.Zoom)
	}

	q := e.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("frame: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDataURL encodes img and wraps the result in a data URL.
func (e Encoder) EncodeDataURL(img image.Image) (string, error) {
	b, err := e.Encode(img)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(b), nil
}

// Fit scales img to cover a w x h rectangle and crops the overflow, keeping
// the centre of the source. The result is always exactly w x h.
func Fit(img image.Image, w, h int) *image.RGBA {
	return FitZoom(img, w, h, 1)
}

// FitZoom is Fit applied to the centred 1/zoom portion of img.
func FitZoom(img image.Image, w, h int, zoom float64) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	src := CoverRect(ZoomRect(img.Bounds(), zoom), w, h)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// ZoomRect returns the centred sub-rectangle of b scaled down by zoom.
func ZoomRect(b image.Rectangle, zoom float64) image.Rectangle {
	if zoom <= 1 {
		return b
	}
	w := int(float64(b.Dx()) / zoom)
	h := int(float64(b.Dy()) / zoom)
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// CoverRect returns the largest centred sub-rectangle of b with the aspect
// ratio w:h.
func CoverRect(b image.Rectangle, w, h int) image.Rectangle {
	sw, sh := b.Dx(), b.Dy()
	if sw*h > sh*w {
		// source is wider: trim the sides
		cw := sh * w / h
		x0 := b.Min.X + (sw-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := sw * h / w
	y0 := b.Min.Y + (sh-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}

// EncodeDataURL wraps JPEG bytes in a data URL.
func EncodeDataURL(jpegBytes []byte) string {
	return DataURLPrefix + base64.StdEncoding.EncodeToString(jpegBytes)
}

// DecodeDataURL returns the payload bytes of a base64 data URL of any image
// type. A bare base64 string is accepted as well.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidDataURL
	}
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, ErrInvalidDataURL
		}
		s = payload
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return b, nil
}

// Decode decodes JPEG or PNG bytes.
func Decode(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("frame: decode: %w", err)
	}
	return img, nil
}

// DecodeURL decodes an image carried in a data URL.
func DecodeURL(s string) (image.Image, error) {
	b, err := DecodeDataURL(s)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}
