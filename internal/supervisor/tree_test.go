package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDefaultsApplied(t *testing.T) {
	tree := New(quiet, TreeConfig{})
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}
}

func TestServicesStartAndStop(t *testing.T) {
	tree := New(quiet, TreeConfig{ShutdownTimeout: time.Second})

	var transport, app atomic.Int32
	tree.AddTransport(Service("channel", func(ctx context.Context) error {
		transport.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}))
	tree.AddApp(Service("session", func(ctx context.Context) error {
		app.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
	if transport.Load() != 1 || app.Load() != 1 {
		t.Errorf("starts: transport=%d app=%d, want 1 each", transport.Load(), app.Load())
	}
}

func TestFailingServiceIsRestarted(t *testing.T) {
	tree := New(quiet, TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	var starts atomic.Int32
	tree.AddApp(Service("flaky", func(ctx context.Context) error {
		if starts.Add(1) <= 2 {
			return errors.New("simulated failure")
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(400 * time.Millisecond)
	for starts.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := starts.Load(); got < 3 {
		t.Errorf("starts = %d, want at least 3", got)
	}
	<-errCh
}

func TestFuncString(t *testing.T) {
	if got := Service("dashboard", nil).String(); got != "dashboard" {
		t.Errorf("String() = %q", got)
	}
}
