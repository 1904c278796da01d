// Package opencv implements capture.Opener on top of gocv VideoCapture.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/teslashibe/go-framestream/pkg/capture"
	"gocv.io/x/gocv"
)

// Config maps facing modes to device indexes.
type Config struct {
	Device     int    // index used for the front camera and tried first for "any"
	RearDevice int    // index of the rear camera, -1 when there is none
	MaxProbe   int    // highest index tried for "any"
	DevPath    string // printf pattern of device nodes, used to classify failures
}

// DefaultConfig returns the usual single-camera layout.
func DefaultConfig() Config {
	return Config{
		Device:     0,
		RearDevice: 1,
		MaxProbe:   3,
		DevPath:    "/dev/video%d",
	}
}

// Opener opens OpenCV capture devices.
type Opener struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Opener.
func New(cfg Config, logger *slog.Logger) *Opener {
	if cfg.DevPath == "" {
		cfg.DevPath = DefaultConfig().DevPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{cfg: cfg, logger: logger.With("component", "capture.opencv")}
}

// Open implements capture.Opener.
func (o *Opener) Open(ctx context.Context, c capture.Constraints) (capture.Device, error) {
	indexes, err := o.candidates(c.Facing)
	if err != nil {
		return nil, err
	}

	var last error
	for _, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dev, err := o.openIndex(idx, c)
		if err == nil {
			return dev, nil
		}
		o.logger.Debug("device open failed", "index", idx, "error", err)
		last = err
		if errors.Is(last, capture.ErrPermissionDenied) {
			break
		}
	}
	return nil, last
}

// Probe opens every index up to MaxProbe and reports the modes found.
func (o *Opener) Probe(ctx context.Context) []capture.Mode {
	var modes []capture.Mode
	for idx := 0; idx <= o.cfg.MaxProbe; idx++ {
		if ctx.Err() != nil {
			break
		}
		dev, err := o.openIndex(idx, capture.Constraints{})
		if err != nil {
			continue
		}
		modes = append(modes, dev.Mode())
		dev.Close()
	}
	return modes
}

func (o *Opener) candidates(facing string) ([]int, error) {
	switch facing {
	case capture.FacingEnvironment:
		if o.cfg.RearDevice < 0 {
			return nil, fmt.Errorf("%w: no rear camera configured", capture.ErrNotFound)
		}
		return []int{o.cfg.RearDevice}, nil
	case capture.FacingUser:
		return []int{o.cfg.Device}, nil
	case capture.FacingAny:
		idx := []int{o.cfg.Device}
		for i := 0; i <= o.cfg.MaxProbe; i++ {
			if i != o.cfg.Device {
				idx = append(idx, i)
			}
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: unknown facing mode %q", capture.ErrNotFound, facing)
	}
}

func (o *Opener) openIndex(idx int, c capture.Constraints) (*Device, error) {
	vc, err := gocv.OpenVideoCapture(idx)
	if err != nil || !vc.IsOpened() {
		if vc != nil {
			vc.Close()
		}
		return nil, o.classify(idx, err)
	}

	// Ideal values: the driver picks the nearest mode it supports.
	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}

	facing := c.Facing
	if facing == capture.FacingAny && idx == o.cfg.RearDevice {
		facing = capture.FacingEnvironment
	}

	return &Device{
		vc:  vc,
		mat: gocv.NewMat(),
		mode: capture.Mode{
			Name:      fmt.Sprintf(o.cfg.DevPath, idx),
			Facing:    facing,
			Width:     int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:    int(vc.Get(gocv.VideoCaptureFrameHeight)),
			Framerate: vc.Get(gocv.VideoCaptureFPS),
		},
	}, nil
}

// classify turns an open failure into a capture error using the state of
// the device node. OpenCV itself only reports that opening failed.
func (o *Opener) classify(idx int, cause error) error {
	path := fmt.Sprintf(o.cfg.DevPath, idx)
	if cause == nil {
		cause = errors.New("video capture not opened")
	}
	return classifyNode(path, cause)
}

func classifyNode(path string, cause error) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", capture.ErrNotFound, path)
		}
		return fmt.Errorf("%s: %w", path, cause)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", capture.ErrPermissionDenied, path)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %s", capture.ErrDeviceBusy, path)
	case err != nil:
		return fmt.Errorf("%s: %w", path, err)
	}
	f.Close()

	// The node opens fine, so something else holds the stream.
	return fmt.Errorf("%w: %s: %v", capture.ErrDeviceBusy, path, cause)
}

// Device is an open OpenCV capture.
type Device struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	mode   capture.Mode
	closed bool
}

// Read implements capture.Device.
func (d *Device) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, capture.ErrClosed
	}
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, capture.ErrNoFrame
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("capture: convert frame: %w", err)
	}
	return img, nil
}

// Mode implements capture.Device.
func (d *Device) Mode() capture.Mode {
	return d.mode
}

// Close implements capture.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.vc.Close()
}
