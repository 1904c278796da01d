package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}

	if cfg.Stream.Quality != 80 {
		t.Errorf("Stream.Quality = %d, want 80", cfg.Stream.Quality)
	}
	if cfg.Stream.TargetWidth != 640 || cfg.Stream.TargetHeight != 480 {
		t.Errorf("target = %dx%d, want 640x480", cfg.Stream.TargetWidth, cfg.Stream.TargetHeight)
	}
	if cfg.Stream.Pacing != "response" {
		t.Errorf("Stream.Pacing = %q, want response", cfg.Stream.Pacing)
	}
	if cfg.Stream.Interval != 100*time.Millisecond {
		t.Errorf("Stream.Interval = %v, want 100ms", cfg.Stream.Interval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"http url", func(c *Config) { c.Channel.URL = "http://localhost" }, "scheme"},
		{"empty url", func(c *Config) { c.Channel.URL = "" }, "required"},
		{"bad protocol", func(c *Config) { c.Stream.Protocol = "grpc" }, "stream.protocol"},
		{"bad pacing", func(c *Config) { c.Stream.Pacing = "burst" }, "stream.pacing"},
		{"zero interval", func(c *Config) { c.Stream.Pacing = "interval"; c.Stream.Interval = 0 }, "stream.interval"},
		{"quality high", func(c *Config) { c.Stream.Quality = 101 }, "quality"},
		{"tiny target", func(c *Config) { c.Stream.TargetWidth = 8 }, "target size"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"reconnect order", func(c *Config) { c.Channel.ReconnectMax = time.Millisecond }, "reconnect"},
		{"negative orphan wait", func(c *Config) { c.Stream.OrphanTimeout = -time.Second }, "orphan"},
		{"bad facing", func(c *Config) { c.Capture.Facing = "left" }, "capture.facing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"FRAMESTREAM_CHANNEL_URL":         "channel.url",
		"FRAMESTREAM_STREAM_TARGET_WIDTH": "stream.target_width",
		"FRAMESTREAM_CAPTURE_REAR_DEVICE": "capture.rear_device",
		"FRAMESTREAM_LOGGING_LEVEL":       "logging.level",
		"FRAMESTREAM_SERVER":              "",
		"FRAMESTREAM_UNKNOWN_KEY":         "",
		"FRAMESTREAM_DASHBOARD_":          "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framestream.yaml")
	yaml := `
channel:
  url: wss://detector.example.com/ws
stream:
  protocol: detection
  quality: 70
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FRAMESTREAM_STREAM_QUALITY", "60")
	t.Setenv("FRAMESTREAM_STREAM_INTERVAL", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Channel.URL != "wss://detector.example.com/ws" {
		t.Errorf("Channel.URL = %q", cfg.Channel.URL)
	}
	if cfg.Stream.Protocol != "detection" {
		t.Errorf("Stream.Protocol = %q, want detection", cfg.Stream.Protocol)
	}
	if cfg.Stream.Quality != 60 {
		t.Errorf("Stream.Quality = %d, want 60 (env beats file)", cfg.Stream.Quality)
	}
	if cfg.Stream.Interval != 250*time.Millisecond {
		t.Errorf("Stream.Interval = %v, want 250ms", cfg.Stream.Interval)
	}
	if cfg.Stream.TargetWidth != 640 {
		t.Errorf("Stream.TargetWidth = %d, want default 640", cfg.Stream.TargetWidth)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	cfg, err := LoadWithOverrides(filepath.Join(t.TempDir(), "missing-is-skipped.yaml"), nil)
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got cfg %+v", cfg)
	}

	cfg, err = LoadWithOverrides("", map[string]any{
		"stream.pacing":  "interval",
		"dashboard.port": 9999,
	})
	if err != nil {
		t.Fatalf("LoadWithOverrides() error = %v", err)
	}
	if cfg.Stream.Pacing != "interval" {
		t.Errorf("Stream.Pacing = %q, want interval", cfg.Stream.Pacing)
	}
	if cfg.Dashboard.Port != 9999 {
		t.Errorf("Dashboard.Port = %d, want 9999", cfg.Dashboard.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FRAMESTREAM_STREAM_PACING", "burst")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() should fail validation")
	}
}

func TestServerURL(t *testing.T) {
	t.Setenv("FRAMESTREAM_SERVER", "")
	if got := ServerURL(DefaultServerURL); got != DefaultServerURL {
		t.Errorf("ServerURL() = %q, want default", got)
	}
	t.Setenv("FRAMESTREAM_SERVER", "wss://x/ws")
	if got := ServerURL(DefaultServerURL); got != "wss://x/ws" {
		t.Errorf("ServerURL() = %q, want env value", got)
	}
}
