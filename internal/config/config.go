// Package config provides configuration for go-framestream commands.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then FRAMESTREAM_* environment variables. See Load.
package config

import (
	"os"
	"time"
)

// Default endpoints.
const (
	DefaultServerURL     = "ws://localhost:8000/ws"
	DefaultDashboardPort = 8090
	DefaultLoopbackPort  = 8000
)

// Config is the root configuration.
type Config struct {
	Channel   ChannelConfig   `koanf:"channel"`
	Capture   CaptureConfig   `koanf:"capture"`
	Stream    StreamConfig    `koanf:"stream"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Loopback  LoopbackConfig  `koanf:"loopback"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ChannelConfig configures the websocket message channel to the processing service.
type ChannelConfig struct {
	URL              string        `koanf:"url"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`
	PingInterval     time.Duration `koanf:"ping_interval"`
	LatencyPings     bool          `koanf:"latency_pings"`
	ReconnectMin     time.Duration `koanf:"reconnect_min"`
	ReconnectMax     time.Duration `koanf:"reconnect_max"`
	AckTimeout       time.Duration `koanf:"ack_timeout"`
	RequireAck       bool          `koanf:"require_ack"`
	BreakerFailures  int           `koanf:"breaker_failures"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// CaptureConfig configures the capture device and its constraint chain.
type CaptureConfig struct {
	Device     int    `koanf:"device"`      // index used for "any camera"
	RearDevice int    `koanf:"rear_device"` // index treated as the rear-facing camera, -1 disables
	MaxProbe   int    `koanf:"max_probe"`   // highest index probed by the unconstrained attempt
	Framerate  int    `koanf:"framerate"`   // ideal frame rate, 0 leaves it unset
	Facing     string `koanf:"facing"`      // "environment", "user" or "" for any
}

// StreamConfig configures the frame streaming loop.
type StreamConfig struct {
	Protocol        string        `koanf:"protocol"` // "simple" or "detection"
	Pacing          string        `koanf:"pacing"`   // "response" or "interval"
	Interval        time.Duration `koanf:"interval"`
	MaxFPS          float64       `koanf:"max_fps"`
	TargetWidth     int           `koanf:"target_width"`
	TargetHeight    int           `koanf:"target_height"`
	Quality         int           `koanf:"quality"`
	ResponseTimeout time.Duration `koanf:"response_timeout"` // 0 waits forever
	OrphanTimeout   time.Duration `koanf:"orphan_timeout"`   // restart wait on an abandoned request
	ShowBoxes       bool          `koanf:"show_boxes"`
	AllowInsecure   bool          `koanf:"allow_insecure"`
	SurfaceWidth    int           `koanf:"surface_width"`
	SurfaceHeight   int           `koanf:"surface_height"`
	AutoStart       bool          `koanf:"auto_start"`
}

// DashboardConfig configures the local web dashboard.
type DashboardConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Static  string `koanf:"static"`
}

// LoopbackConfig configures the development processing endpoint.
type LoopbackConfig struct {
	Port    int           `koanf:"port"`
	Latency time.Duration `koanf:"latency"`
	Debug   bool          `koanf:"debug"`
}

// LoggingConfig configures internal/log.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			URL:              DefaultServerURL,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
			PingInterval:     25 * time.Second,
			ReconnectMin:     500 * time.Millisecond,
			ReconnectMax:     10 * time.Second,
			AckTimeout:       5 * time.Second,
			RequireAck:       false,
			BreakerFailures:  5,
			BreakerCooldown:  15 * time.Second,
		},
		Capture: CaptureConfig{
			Device:     0,
			RearDevice: 1,
			MaxProbe:   3,
			Framerate:  30,
			Facing:     "environment",
		},
		Stream: StreamConfig{
			Protocol:        "simple",
			Pacing:          "response",
			Interval:        100 * time.Millisecond,
			MaxFPS:          30,
			TargetWidth:     640,
			TargetHeight:    480,
			Quality:         80,
			ResponseTimeout: 0,
			OrphanTimeout:   10 * time.Second,
			ShowBoxes:       true,
			AllowInsecure:   false,
			SurfaceWidth:    640,
			SurfaceHeight:   480,
			AutoStart:       false,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    DefaultDashboardPort,
			Static:  "./web",
		},
		Loopback: LoopbackConfig{
			Port:    DefaultLoopbackPort,
			Latency: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "",
		},
	}
}

// ServerURL returns the processing service URL from FRAMESTREAM_SERVER env var.
// Falls back to the provided default if not set.
func ServerURL(defaultURL string) string {
	if u := os.Getenv("FRAMESTREAM_SERVER"); u != "" {
		return u
	}
	return defaultURL
}
