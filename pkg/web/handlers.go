package web

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framestream/pkg/camera"
	"github.com/teslashibe/go-framestream/pkg/capture"
	"github.com/teslashibe/go-framestream/pkg/channel"
	"github.com/teslashibe/go-framestream/pkg/hub"
	"github.com/teslashibe/go-framestream/pkg/stream"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok"}
	if sess := s.getSession(); sess != nil {
		snap := sess.Snapshot()
		resp["connected"] = snap.Connected
		resp["running"] = snap.Running
	}
	return c.JSON(resp)
}

// handleSession returns the current session snapshot
func (s *Server) handleSession(c *fiber.Ctx) error {
	sess := s.getSession()
	if sess == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errNoSession.Error()})
	}
	return c.JSON(sess.Snapshot())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	sess := s.getSession()
	if sess == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errNoSession.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.StartTimeout)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		s.logger.Warn("start request failed", "error", err)
		return c.Status(startStatus(err)).JSON(fiber.Map{
			"error":   stream.Describe(err),
			"kind":    capture.Kind(err),
			"session": sess.Snapshot(),
		})
	}
	return c.JSON(sess.Snapshot())
}

// startStatus maps a start failure to an HTTP status code
func startStatus(err error) int {
	switch {
	case errors.Is(err, stream.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, stream.ErrInsecureContext), errors.Is(err, capture.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, stream.ErrChannelDisconnected), errors.Is(err, channel.ErrNotConnected),
		errors.Is(err, capture.ErrDeviceUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	sess := s.getSession()
	if sess == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errNoSession.Error()})
	}
	sess.Stop()
	return c.JSON(sess.Snapshot())
}

type boxesRequest struct {
	Show bool `json:"show"`
}

func (s *Server) handleBoxes(c *fiber.Ctx) error {
	sess := s.getSession()
	if sess == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errNoSession.Error()})
	}
	var req boxesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	sess.SetShowBoxes(req.Show)
	return c.JSON(sess.Snapshot())
}

// handleDetections returns the latest detection list and its summary
func (s *Server) handleDetections(c *fiber.Ctx) error {
	sess := s.getSession()
	if sess == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errNoSession.Error()})
	}
	snap := sess.Snapshot()
	return c.JSON(fiber.Map{
		"detections": snap.Detections,
		"summary":    snap.Summary,
	})
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"config":       s.camera.GetConfigJSON(),
		"capabilities": camera.Capabilities(),
	})
}

func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.AddLog("info", "Camera settings updated")
	return c.JSON(fiber.Map{"config": s.camera.GetConfigJSON()})
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handleStatusWS streams session snapshots, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if sess := s.getSession(); sess != nil {
		if msg, err := hub.Marshal(sess.Snapshot()); err == nil {
			initial = append(initial, msg)
		}
	}
	if client := hub.NewClient(s.statusHub, c, initial...); client != nil {
		client.Run()
	}
}

// handleLogsWS streams status lines, starting with the recent ones
func (s *Server) handleLogsWS(c *websocket.Conn) {
	logs := s.Logs()
	initial := make([]hub.Message, 0, len(logs))
	for _, entry := range logs {
		if msg, err := hub.Marshal(entry); err == nil {
			initial = append(initial, msg)
		}
	}
	if client := hub.NewClient(s.logHub, c, initial...); client != nil {
		client.Run()
	}
}

// handleSurfaceWS streams drawn frames as binary JPEG messages, starting
// with the last frame. An empty message means the surface was cleared.
func (s *Server) handleSurfaceWS(c *websocket.Conn) {
	var initial []hub.Message
	if last := s.surface.Last(); last != nil {
		initial = append(initial, hub.NewBinaryMessage(last))
	}
	if client := hub.NewClient(s.surfaceHub, c, initial...); client != nil {
		client.Run()
	}
}
