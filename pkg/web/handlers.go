package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-attend/pkg/attend"
	"github.com/teslashibe/go-attend/pkg/hub"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.Send(indexHTML)
}

// handleStatus returns the current flow state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.Stats == nil {
		return c.JSON(attend.StatsSnapshot{})
	}
	return c.JSON(s.Stats())
}

// handleLogs returns recent log entries
func (s *Server) handleLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handleCapture triggers a manual capture and returns the verdict
func (s *Server) handleCapture(c *fiber.Ctx) error {
	if s.OnCapture == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "capture not configured",
		})
	}

	res, err := s.OnCapture(c.UserContext())
	switch {
	case errors.Is(err, attend.ErrUploadInFlight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, attend.ErrNotStarted), errors.Is(err, attend.ErrClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, attend.ErrTransportFailure):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"capture_id":  res.ID,
		"matched":     res.Matched,
		"message":     res.Message,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

func jsonMessage(v any) (hub.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}
