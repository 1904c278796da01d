// Package loopback is a development processing endpoint. It answers frames
// over the channel protocol through a pluggable Processor so the streaming
// client can run end to end without the real detection service.
package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-framestream/pkg/frame"
	"github.com/teslashibe/go-framestream/pkg/protocol"
)

// Processor turns an inbound JPEG into an annotated image and detections.
type Processor interface {
	Process(ctx context.Context, jpeg []byte) ([]byte, []protocol.Detection, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, jpeg []byte) ([]byte, []protocol.Detection, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, jpeg []byte) ([]byte, []protocol.Detection, error) {
	return f(ctx, jpeg)
}

// Echo returns every frame unchanged with no detections.
var Echo = ProcessorFunc(func(_ context.Context, jpeg []byte) ([]byte, []protocol.Detection, error) {
	return jpeg, nil, nil
})

// Config configures a Server.
type Config struct {
	Latency time.Duration // artificial delay before each processed_frame
	Ack     bool          // acknowledge every message carrying an id
}

// Conn is a connected streaming client.
type Conn struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Detecting bool

	mu     sync.Mutex
	sent   *atomic.Uint64
	logger *slog.Logger
}

// Send sends a message to the client.
func (c *Conn) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// reply sends a freshly built message, logging instead of failing.
func (c *Conn) reply(msg *protocol.Message, err error) {
	if err != nil {
		c.logger.Warn("build reply", "error", err)
		return
	}
	if err := c.Send(msg); err != nil {
		c.logger.Debug("send failed", "client", c.ID, "error", err)
		return
	}
	c.sent.Add(1)
}

// Server answers frame requests from streaming clients.
type Server struct {
	cfg       Config
	processor Processor
	logger    *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesProcessed  atomic.Uint64
	framesFailed     atomic.Uint64
}

// NewServer creates a server. A nil processor echoes frames.
func NewServer(cfg Config, p Processor, logger *slog.Logger) *Server {
	if p == nil {
		p = Echo
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		processor: p,
		logger:    logger.With("component", "loopback"),
		conns:     make(map[string]*Conn),
	}
}

// RegisterRoutes registers the websocket endpoint and health check on a Fiber app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleConn))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "clients": s.ClientCount()})
	})
}

// RegisterAPIRoutes registers the stats API.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})
	api.Get("/clients", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": s.GetClientInfos(),
			"count":   s.ClientCount(),
		})
	})
	api.Post("/disconnect", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"disconnected": s.DisconnectAll()})
	})
}

// App builds a Fiber app with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             16 << 20,
	})
	s.RegisterRoutes(app)
	s.RegisterAPIRoutes(app.Group("/api"))
	return app
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	app := s.App()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("loopback listening", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("loopback: listen %s: %w", addr, err)
	case <-ctx.Done():
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown error", "error", err)
		}
		return ctx.Err()
	}
}

func (s *Server) handleConn(c *websocket.Conn) {
	conn := &Conn{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
		sent:      &s.messagesSent,
		logger:    s.logger,
	}

	s.mu.Lock()
	s.conns[conn.ID] = conn
	count := len(s.conns)
	s.mu.Unlock()

	s.logger.Debug("client connected", "client", conn.ID, "total", count)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.ID)
		count := len(s.conns)
		s.mu.Unlock()
		s.logger.Debug("client disconnected", "client", conn.ID, "total", count)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("read error", "client", conn.ID, "error", err)
			return
		}

		conn.mu.Lock()
		conn.LastSeen = time.Now()
		conn.mu.Unlock()

		s.messagesReceived.Add(1)
		s.handleMessage(ctx, conn, data)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *Conn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Warn("parse error", "client", conn.ID, "error", err)
		conn.reply(protocol.NewErrorMessage("invalid message: "+err.Error()))
		return
	}

	var handleErr error
	switch msg.Type {
	case protocol.TypeProcessFrame, protocol.TypeVideoFrame:
		handleErr = s.processFrame(ctx, conn, msg)

	case protocol.TypeStartDetection:
		conn.mu.Lock()
		conn.Detecting = true
		conn.mu.Unlock()
		conn.reply(protocol.NewStatusMessage("Detection started"))

	case protocol.TypeStopDetection:
		conn.mu.Lock()
		conn.Detecting = false
		conn.mu.Unlock()
		conn.reply(protocol.NewStatusMessage("Detection stopped"))

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		pingTS := msg.Timestamp
		id := ""
		if err == nil && ping.ID != "" {
			id, pingTS = ping.ID, ping.Timestamp
		}
		conn.reply(protocol.NewPongMessage(id, pingTS, time.Now().UnixMilli()))

	default:
		handleErr = fmt.Errorf("unsupported message type %q", msg.Type)
	}

	if s.cfg.Ack && msg.ID != "" && msg.Type != protocol.TypePing {
		conn.reply(protocol.NewAckMessage(msg.ID, handleErr))
	}
}

func (s *Server) processFrame(ctx context.Context, conn *Conn, msg *protocol.Message) error {
	url, err := msg.GetFrameURL()
	if err == nil {
		var img []byte
		if img, err = frame.DecodeDataURL(url); err == nil {
			err = s.respond(ctx, conn, msg.Type, img)
		}
	}
	if err != nil {
		s.framesFailed.Add(1)
		s.logger.Warn("frame failed", "client", conn.ID, "error", err)
		conn.reply(protocol.NewErrorMessage(err.Error()))
	}
	return err
}

func (s *Server) respond(ctx context.Context, conn *Conn, msgType protocol.MessageType, img []byte) error {
	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	out, dets, err := s.processor.Process(ctx, img)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	s.framesProcessed.Add(1)

	// The simple protocol answers with a bare data URL, the detection
	// protocol with {image, detections}.
	if msgType == protocol.TypeVideoFrame && dets == nil {
		dets = []protocol.Detection{}
	}
	conn.reply(protocol.NewProcessedFrameMessage(frame.EncodeDataURL(out), dets))
	return nil
}

// DisconnectAll drops every client connection. Clients are expected to
// reconnect on their own.
func (s *Server) DisconnectAll() int {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		c.Conn.Close()
		c.mu.Unlock()
	}
	return len(conns)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Stats contains server statistics
type Stats struct {
	ClientCount      int    `json:"client_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesProcessed  uint64 `json:"frames_processed"`
	FramesFailed     uint64 `json:"frames_failed"`
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		ClientCount:      s.ClientCount(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		FramesProcessed:  s.framesProcessed.Load(),
		FramesFailed:     s.framesFailed.Load(),
	}
}

// ClientInfo contains info about a connected client
type ClientInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Detecting bool      `json:"detecting"`
}

// GetClientInfos returns info about all connected clients
func (s *Server) GetClientInfos() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(s.conns))
	for _, c := range s.conns {
		c.mu.Lock()
		infos = append(infos, ClientInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
			Detecting: c.Detecting,
		})
		c.mu.Unlock()
	}
	return infos
}
