package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"run": false, "loopback": false, "probe": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestLoadConfigAppliesChangedFlags(t *testing.T) {
	opts := &rootOptions{}
	cmd := newRunCmd(opts)
	if err := cmd.ParseFlags([]string{
		"--server", "wss://detector.example.com/ws",
		"--protocol", "detection",
		"--response-timeout", "2s",
		"--dashboard=false",
	}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd, opts, runFlagKeys)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channel.URL != "wss://detector.example.com/ws" {
		t.Errorf("url = %q", cfg.Channel.URL)
	}
	if cfg.Stream.Protocol != "detection" {
		t.Errorf("protocol = %q", cfg.Stream.Protocol)
	}
	if cfg.Stream.ResponseTimeout != 2*time.Second {
		t.Errorf("response timeout = %v", cfg.Stream.ResponseTimeout)
	}
	if cfg.Dashboard.Enabled {
		t.Error("dashboard should be disabled")
	}
	// Unchanged flags keep config values.
	if cfg.Stream.Pacing != "response" {
		t.Errorf("pacing = %q", cfg.Stream.Pacing)
	}
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	opts := &rootOptions{}
	cmd := newRunCmd(opts)
	if err := cmd.ParseFlags([]string{"--pacing", "sometimes"}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(cmd, opts, runFlagKeys); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCameraConfigFromStream(t *testing.T) {
	opts := &rootOptions{}
	cfg, err := loadConfig(&cobra.Command{}, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Stream.TargetWidth, cfg.Stream.TargetHeight = 320, 240
	cfg.Capture.Framerate = 0

	cc := cameraConfig(cfg)
	if cc.Width != 320 || cc.Height != 240 {
		t.Errorf("size = %dx%d", cc.Width, cc.Height)
	}
	if cc.Framerate != 30 {
		t.Errorf("framerate = %d, want camera default", cc.Framerate)
	}
	if errs := cc.Validate(); len(errs) > 0 {
		t.Errorf("invalid camera config: %v", errs)
	}
}
