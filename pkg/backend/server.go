// Package backend is a reference attendance endpoint. It accepts the kiosk's
// multipart uploads, asks a Matcher for a verdict and keeps the most recent
// check-ins in memory.
package backend

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/upload"
)

// Defaults for Options.
const (
	DefaultPath      = "/api/attendance"
	DefaultRecent    = 100
	DefaultMaxUpload = 8 << 20
)

// ErrInvalidImage is returned when an upload cannot be decoded.
var ErrInvalidImage = errors.New("backend: invalid image")

// CheckIn is one processed upload.
type CheckIn struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Matched  bool      `json:"matched"`
	UserID   string    `json:"user_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Filename string    `json:"filename"`
	Bytes    int       `json:"bytes"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
}

// Options configures a Server.
type Options struct {
	Path      string // upload route, default /api/attendance
	Recent    int    // check-ins kept for GET, default 100
	MaxUpload int    // request body limit in bytes, default 8 MiB
}

// Server is the reference attendance backend.
type Server struct {
	app     *fiber.App
	matcher Matcher
	logger  *slog.Logger
	recent  int

	mu       sync.RWMutex
	checkIns []CheckIn
	total    int
	matched  int
}

// NewServer creates a backend that asks matcher for verdicts.
func NewServer(matcher Matcher, opts Options) *Server {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Recent <= 0 {
		opts.Recent = DefaultRecent
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}

	s := &Server{
		matcher: matcher,
		logger:  log.Component("backend"),
		recent:  opts.Recent,
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-attend backend",
		DisableStartupMessage: true,
		BodyLimit:             opts.MaxUpload,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Post(opts.Path, s.handleUpload)
	app.Get(opts.Path, s.handleList)

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("backend listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// CheckIns returns the recent check-ins, newest first.
func (s *Server) CheckIns() []CheckIn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CheckIn, len(s.checkIns))
	for i, c := range s.checkIns {
		out[len(out)-1-i] = c
	}
	return out
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.mu.RLock()
	total, matched := s.total, s.matched
	s.mu.RUnlock()
	return c.JSON(fiber.Map{
		"status":  "ok",
		"total":   total,
		"matched": matched,
	})
}

func (s *Server) handleList(c *fiber.Ctx) error {
	return c.JSON(s.CheckIns())
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile(upload.FieldName)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing " + upload.FieldName + " file",
		})
	}
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "unsupported content type " + ct,
		})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("rejected upload", "err", err, "filename", fh.Filename)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": ErrInvalidImage.Error(),
		})
	}

	verdict, err := s.matcher.Match(c.UserContext(), img)
	if err != nil {
		s.logger.Error("match failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "match failed"})
	}

	id := c.Get(upload.HeaderCaptureID)
	if id == "" {
		id = uuid.NewString()
	}
	b := img.Bounds()
	s.record(CheckIn{
		ID:       id,
		Time:     time.Now(),
		Matched:  verdict.Matched,
		UserID:   verdict.UserID,
		Name:     verdict.Name,
		Filename: fh.Filename,
		Bytes:    len(data),
		Width:    b.Dx(),
		Height:   b.Dy(),
	})

	resp := upload.Response{
		Match:  upload.Bool(verdict.Matched),
		Status: upload.StatusNotFound,
		UserID: verdict.UserID,
		Name:   verdict.Name,
	}
	if verdict.Matched {
		resp.Status = upload.StatusFound
	}
	resp.Message = resp.ResultMessage()

	s.logger.Info("check-in", "capture_id", id, "matched", verdict.Matched, "name", verdict.Name)
	return c.JSON(resp)
}

func (s *Server) record(ci CheckIn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if ci.Matched {
		s.matched++
	}
	s.checkIns = append(s.checkIns, ci)
	if len(s.checkIns) > s.recent {
		s.checkIns = s.checkIns[len(s.checkIns)-s.recent:]
	}
}
