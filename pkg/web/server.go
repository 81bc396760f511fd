// Package web serves the kiosk dashboard: live camera frames with the face
// overlay, flow state, counters and a log panel, plus a manual capture
// trigger.
package web

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/attend"
	"github.com/teslashibe/go-attend/pkg/hub"
)

//go:embed index.html
var indexHTML []byte

const maxLogs = 500

// LogEntry is one line in the dashboard log panel.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, capture, error
	Message string `json:"message"`
}

// Server is the dashboard. It implements attend.Observer and feed.Display so
// it can be wired straight into a flow.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	stateMu sync.RWMutex
	state   attend.State

	logsMu sync.RWMutex
	logs   []LogEntry

	statusHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub

	screen *screen

	// OnCapture runs a manual capture for POST /api/capture.
	OnCapture func(ctx context.Context) (attend.Result, error)

	// Stats returns counters for GET /api/stats.
	Stats func() attend.StatsSnapshot
}

// NewServer creates a dashboard listening on port.
func NewServer(port string) *Server {
	s := &Server{
		port:      port,
		logger:    log.Component("web"),
		logs:      make([]LogEntry, 0, maxLogs),
		statusHub: hub.New("status"),
		logHub:    hub.New("logs"),
		cameraHub: hub.New("camera"),
	}
	s.screen = newScreen(s.cameraHub)
	s.statusHub.OnConnect = s.sendState
	s.logHub.OnConnect = s.sendLogs

	app := fiber.New(fiber.Config{
		AppName:               "go-attend dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/logs", s.handleLogs)
	api.Post("/capture", s.handleCapture)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.statusHub.Serve))
	app.Get("/ws/logs", websocket.New(s.logHub.Serve))
	app.Get("/ws/camera", websocket.New(s.cameraHub.Serve))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()

	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync runs Start in a goroutine and logs its error.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("dashboard stopped", "err", err)
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// OnState stores and broadcasts the flow state.
func (s *Server) OnState(state attend.State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = state
	s.stateMu.Unlock()

	if state.Message != "" && state.LastCaptureID != prev.LastCaptureID {
		s.AddLog("capture", state.Message)
	}
	s.statusHub.BroadcastJSON(state)
}

// OnError adds the failure to the log panel.
func (s *Server) OnError(err error) {
	if errors.Is(err, attend.ErrUploadInFlight) {
		return
	}
	s.AddLog("error", err.Error())
}

// State returns the last published state.
func (s *Server) State() attend.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// AddLog appends a log entry and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// Logs returns a copy of the log buffer.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]LogEntry(nil), s.logs...)
}

func (s *Server) sendState(c *hub.Client) {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	if msg, err := jsonMessage(state); err == nil {
		c.Send(msg)
	}
}

func (s *Server) sendLogs(c *hub.Client) {
	logs := s.Logs()
	if len(logs) > 50 {
		logs = logs[len(logs)-50:]
	}
	for _, entry := range logs {
		if msg, err := jsonMessage(entry); err == nil {
			c.Send(msg)
		}
	}
}
