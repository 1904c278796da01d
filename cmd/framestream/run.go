package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framestream/internal/config"
	"github.com/teslashibe/go-framestream/internal/log"
	"github.com/teslashibe/go-framestream/internal/supervisor"
	"github.com/teslashibe/go-framestream/pkg/camera"
	"github.com/teslashibe/go-framestream/pkg/capture/opencv"
	"github.com/teslashibe/go-framestream/pkg/channel"
	"github.com/teslashibe/go-framestream/pkg/stream"
	"github.com/teslashibe/go-framestream/pkg/surface"
	"github.com/teslashibe/go-framestream/pkg/web"
)

var runFlagKeys = map[string]string{
	"server":           "channel.url",
	"protocol":         "stream.protocol",
	"pacing":           "stream.pacing",
	"interval":         "stream.interval",
	"max-fps":          "stream.max_fps",
	"response-timeout": "stream.response_timeout",
	"facing":           "capture.facing",
	"device":           "capture.device",
	"allow-insecure":   "stream.allow_insecure",
	"auto-start":       "stream.auto_start",
	"dashboard":        "dashboard.enabled",
	"dashboard-port":   "dashboard.port",
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the processing service and serve the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("server") {
				if u := config.ServerURL(""); u != "" {
					if err := cmd.Flags().Set("server", u); err != nil {
						return err
					}
				}
			}
			cfg, err := loadConfig(cmd, opts, runFlagKeys)
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg, log.L())
		},
	}

	f := cmd.Flags()
	f.StringP("server", "s", config.DefaultServerURL, "processing service websocket URL (env FRAMESTREAM_SERVER)")
	f.String("protocol", "simple", "frame protocol: simple or detection")
	f.String("pacing", "response", "pacing: response or interval")
	f.Duration("interval", 100*time.Millisecond, "send period with interval pacing")
	f.Float64("max-fps", 30, "render rate cap with response pacing")
	f.Duration("response-timeout", 0, "abandon a frame after this long, 0 waits forever")
	f.String("facing", "environment", "preferred camera: environment, user or empty for any")
	f.Int("device", 0, "capture device index")
	f.Bool("allow-insecure", false, "allow capture over an unencrypted remote connection")
	f.Bool("auto-start", false, "start the camera once connected")
	f.Bool("dashboard", true, "serve the local dashboard")
	f.Int("dashboard-port", config.DefaultDashboardPort, "dashboard port")
	return cmd
}

// runClient wires the session and serves until ctx is cancelled.
func runClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client := channel.NewClient(channel.Config{
		URL:              cfg.Channel.URL,
		HandshakeTimeout: cfg.Channel.HandshakeTimeout,
		WriteTimeout:     cfg.Channel.WriteTimeout,
		PingInterval:     cfg.Channel.PingInterval,
		LatencyPings:     cfg.Channel.LatencyPings,
		ReconnectMin:     cfg.Channel.ReconnectMin,
		ReconnectMax:     cfg.Channel.ReconnectMax,
		AckTimeout:       cfg.Channel.AckTimeout,
		RequireAck:       cfg.Channel.RequireAck,
		BreakerFailures:  uint32(cfg.Channel.BreakerFailures),
		BreakerCooldown:  cfg.Channel.BreakerCooldown,
	}, logger)

	opener := opencv.New(opencvConfig(cfg.Capture), logger)
	cam := camera.NewManager(cameraConfig(cfg))
	canvas := surface.NewCanvas(cfg.Stream.SurfaceWidth, cfg.Stream.SurfaceHeight)

	var dash *web.Server
	surf := surface.Surface(canvas)
	if cfg.Dashboard.Enabled {
		dash = web.NewServer(web.Config{
			Host:         cfg.Dashboard.Host,
			Port:         cfg.Dashboard.Port,
			Static:       cfg.Dashboard.Static,
			StartTimeout: 15 * time.Second,
			FrameQuality: cfg.Stream.Quality,
		}, cam, logger)
		surf = surface.Multi(canvas, dash.Surface())
	}

	sessOpts := stream.Options{
		Opener:          opener,
		Channel:         client,
		Surface:         surf,
		Camera:          cam,
		Protocol:        stream.Protocol(cfg.Stream.Protocol),
		Pacing:          stream.Pacing(cfg.Stream.Pacing),
		Interval:        cfg.Stream.Interval,
		MaxFPS:          cfg.Stream.MaxFPS,
		ResponseTimeout: cfg.Stream.ResponseTimeout,
		OrphanTimeout:   cfg.Stream.OrphanTimeout,
		ShowBoxes:       cfg.Stream.ShowBoxes,
		AllowInsecure:   cfg.Stream.AllowInsecure,
		Logger:          logger,
		OnStatus:        logStatus(logger),
	}
	if dash != nil {
		statusLog := sessOpts.OnStatus
		sessOpts.OnStatus = func(st stream.Status) {
			statusLog(st)
			dash.AddStatus(st)
		}
		sessOpts.OnSnapshot = dash.PublishSnapshot
	}
	sess := stream.New(sessOpts)

	tree := supervisor.New(logger, supervisor.DefaultTreeConfig())
	tree.AddTransport(supervisor.Service("channel", client.Run))
	tree.AddApp(supervisor.Service("session", sess.Run))
	if dash != nil {
		dash.SetSession(sess)
		tree.AddApp(dash)
	}
	if cfg.Stream.AutoStart {
		tree.AddApp(supervisor.Service("autostart", func(ctx context.Context) error {
			return autoStart(ctx, client, sess, logger)
		}))
	}

	logger.Info("framestream running",
		"server", cfg.Channel.URL,
		"protocol", cfg.Stream.Protocol,
		"pacing", cfg.Stream.Pacing,
		"dashboard", cfg.Dashboard.Enabled,
	)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// autoStart starts the camera on the first connection, then idles until ctx
// is done so the supervisor does not restart it.
func autoStart(ctx context.Context, ch channel.Channel, sess *stream.Session, logger *slog.Logger) error {
	if err := waitConnected(ctx, ch); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := sess.Start(startCtx)
	cancel()
	if err != nil {
		logger.Warn("auto start failed", "error", stream.Describe(err))
	}

	<-ctx.Done()
	return ctx.Err()
}

// waitConnected blocks until ch is up. Its subscription ends on return so
// an idle subscriber never holds up channel delivery.
func waitConnected(ctx context.Context, ch channel.Channel) error {
	events, unsubscribe := ch.Subscribe(4)
	defer unsubscribe()

	for !ch.Connected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-events:
		}
	}
	return nil
}

func logStatus(logger *slog.Logger) func(stream.Status) {
	logger = logger.With("component", "status")
	return func(st stream.Status) {
		switch st.Level {
		case stream.LevelDanger:
			logger.Warn(st.Message)
		default:
			logger.Info(st.Message, "level", st.Level)
		}
	}
}

func opencvConfig(c config.CaptureConfig) opencv.Config {
	oc := opencv.DefaultConfig()
	oc.Device = c.Device
	oc.RearDevice = c.RearDevice
	oc.MaxProbe = c.MaxProbe
	return oc
}

func cameraConfig(cfg *config.Config) camera.Config {
	cc := camera.DefaultConfig()
	cc.Width = cfg.Stream.TargetWidth
	cc.Height = cfg.Stream.TargetHeight
	cc.Quality = cfg.Stream.Quality
	cc.Facing = cfg.Capture.Facing
	if cfg.Capture.Framerate > 0 {
		cc.Framerate = cfg.Capture.Framerate
	}
	return cc
}
