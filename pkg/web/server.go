// Package web provides the local dashboard: session control, camera
// settings and live status, log and frame streams.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-framestream/pkg/camera"
	"github.com/teslashibe/go-framestream/pkg/hub"
	"github.com/teslashibe/go-framestream/pkg/stream"
)

// Session is the streaming session as driven by the dashboard
type Session interface {
	Start(ctx context.Context) error
	Stop()
	SetShowBoxes(on bool)
	Snapshot() stream.Snapshot
}

// Config configures the dashboard server
type Config struct {
	Host   string
	Port   int
	Static string // directory served at /, empty disables it

	// StartTimeout bounds a start request, device acquisition included
	StartTimeout time.Duration

	// FrameQuality is the JPEG quality of /ws/surface frames
	FrameQuality int
}

// LogEntry is one status line shown on the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"` // info, success, danger
	Message string `json:"message"`
}

const maxLogs = 500

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	camera *camera.Manager

	sessionMu sync.RWMutex
	session   Session

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub  *hub.Hub
	logHub     *hub.Hub
	surfaceHub *hub.Hub

	surface *FrameSurface
}

// NewServer creates the dashboard. Attach a session with SetSession
// before serving session routes.
func NewServer(cfg Config, cam *camera.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 15 * time.Second
	}
	if cfg.FrameQuality <= 0 {
		cfg.FrameQuality = 75
	}
	if cam == nil {
		cam = camera.NewManager(camera.DefaultConfig())
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger.With("component", "web"),
		camera:     cam,
		logs:       make([]LogEntry, 0, maxLogs),
		statusHub:  hub.New("status", logger),
		logHub:     hub.New("logs", logger),
		surfaceHub: hub.New("surface", logger),
	}
	s.surface = NewFrameSurface(s.surfaceHub, cfg.FrameQuality)

	app := fiber.New(fiber.Config{
		AppName:               "framestream dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.Static != "" {
		app.Static("/", cfg.Static)
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/session", s.handleSession)
	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)
	api.Post("/session/boxes", s.handleBoxes)
	api.Get("/detections", s.handleDetections)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handlePresets)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/surface", websocket.New(s.handleSurfaceWS))

	s.app = app
	return s
}

// SetSession attaches the session the dashboard controls
func (s *Server) SetSession(sess Session) {
	s.sessionMu.Lock()
	s.session = sess
	s.sessionMu.Unlock()
}

func (s *Server) getSession() Session {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.session
}

// App returns the fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Surface returns the surface that streams drawn frames to /ws/surface
func (s *Server) Surface() *FrameSurface {
	return s.surface
}

// Serve runs the hubs and the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, h := range []*hub.Hub{s.statusHub, s.logHub, s.surfaceHub} {
		go func(h *hub.Hub) { _ = h.Run(hubCtx) }(h)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", "http://"+s.Addr())
		errCh <- s.app.Listen(s.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String names the service for supervisor logs
func (s *Server) String() string {
	return "dashboard"
}

// PublishSnapshot broadcasts a session snapshot to /ws/status clients
func (s *Server) PublishSnapshot(snap stream.Snapshot) {
	if err := s.statusHub.BroadcastJSON(snap); err != nil {
		s.logger.Warn("snapshot encode failed", "error", err)
	}
}

// AddStatus records a status change and broadcasts it to /ws/logs clients
func (s *Server) AddStatus(st stream.Status) {
	s.AddLog(string(st.Level), st.Message)
}

// AddLog adds a log entry and broadcasts it
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Level:   level,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	_ = s.logHub.BroadcastJSON(entry)
}

// Logs returns a copy of the recent entries
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

var errNoSession = errors.New("web: no session attached")
