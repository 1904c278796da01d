package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDefaultChain(t *testing.T) {
	chain := DefaultChain(640, 480, 30)
	want := []Constraints{
		{Facing: FacingEnvironment, Width: 640, Height: 480, Framerate: 30},
		{Width: 640, Height: 480},
		{},
	}
	if len(chain) != len(want) {
		t.Fatalf("len(chain) = %d, want %d", len(chain), len(want))
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %+v, want %+v", i, chain[i], want[i])
		}
	}

	if got := Chain(FacingAny, 640, 480, 30); len(got) != 2 {
		t.Errorf("Chain(any) has %d entries, want 2", len(got))
	}
}

func TestConstraintsString(t *testing.T) {
	tests := []struct {
		c    Constraints
		want string
	}{
		{Constraints{}, "any camera"},
		{Constraints{Width: 640, Height: 480}, "any camera 640x480"},
		{Constraints{Facing: "environment", Width: 640, Height: 480, Framerate: 30}, "environment camera 640x480 @30fps"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAcquireFirstAttempt(t *testing.T) {
	o := &MockOpener{}
	dev, used, err := Acquire(context.Background(), o, DefaultChain(640, 480, 30), quiet)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer dev.Close()
	if used.Facing != FacingEnvironment {
		t.Errorf("used constraints = %+v, want rear camera", used)
	}
	if len(o.Calls()) != 1 {
		t.Errorf("opener called %d times, want 1", len(o.Calls()))
	}
}

func TestAcquireFallsBack(t *testing.T) {
	o := &MockOpener{
		OpenFunc: func(ctx context.Context, c Constraints) (Device, error) {
			if !c.Unconstrained() {
				return nil, ErrNotFound
			}
			return NewMockDevice(320, 240), nil
		},
	}
	dev, used, err := Acquire(context.Background(), o, DefaultChain(640, 480, 30), quiet)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !used.Unconstrained() {
		t.Errorf("used = %+v, want unconstrained", used)
	}
	if dev.Mode().Width != 320 {
		t.Errorf("mode = %v", dev.Mode())
	}
	if len(o.Calls()) != 3 {
		t.Errorf("opener called %d times, want 3", len(o.Calls()))
	}
}

func TestAcquireExhausted(t *testing.T) {
	o := &MockOpener{
		OpenFunc: func(ctx context.Context, c Constraints) (Device, error) {
			if c.Facing != "" {
				return nil, ErrNotFound
			}
			return nil, ErrDeviceBusy
		},
	}
	_, _, err := Acquire(context.Background(), o, DefaultChain(640, 480, 0), quiet)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want ErrDeviceUnavailable", err)
	}
	if !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("error = %v, want cause ErrDeviceBusy", err)
	}

	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error %T is not *UnavailableError", err)
	}
	if len(ue.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(ue.Attempts))
	}
	if Kind(err) != "busy" {
		t.Errorf("Kind() = %q, want busy", Kind(err))
	}
}

func TestAcquirePermissionDeniedStops(t *testing.T) {
	o := &MockOpener{
		OpenFunc: func(ctx context.Context, c Constraints) (Device, error) {
			return nil, ErrPermissionDenied
		},
	}
	_, _, err := Acquire(context.Background(), o, DefaultChain(640, 480, 30), quiet)
	if !errors.Is(err, ErrPermissionDenied) || !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want permission denied and unavailable", err)
	}
	if len(o.Calls()) != 1 {
		t.Errorf("opener called %d times, want 1", len(o.Calls()))
	}
	if !strings.Contains(Describe(err), "denied") {
		t.Errorf("Describe() = %q", Describe(err))
	}
}

func TestAcquireCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Acquire(ctx, &MockOpener{}, DefaultChain(640, 480, 30), quiet)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAcquireEmptyChain(t *testing.T) {
	if _, _, err := Acquire(context.Background(), &MockOpener{}, nil, quiet); !errors.Is(err, ErrNoConstraints) {
		t.Errorf("error = %v, want ErrNoConstraints", err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, "not_found"},
		{&UnavailableError{}, "unavailable"},
		{errors.New("v4l2 ioctl failed"), "error"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMockDeviceClose(t *testing.T) {
	d := NewMockDevice(64, 48)
	img, err := d.Read()
	if err != nil || img.Bounds().Dx() != 64 {
		t.Fatalf("Read() = %v, %v", img, err)
	}
	d.Close()
	if _, err := d.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close = %v, want ErrClosed", err)
	}
	if d.Reads() != 1 {
		t.Errorf("Reads() = %d, want 1", d.Reads())
	}
}
