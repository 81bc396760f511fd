package web

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/teslashibe/go-attend/pkg/attend"
	"github.com/teslashibe/go-attend/pkg/hub"
)

// Overlay style for face boxes.
var (
	boxColor = color.RGBA{G: 255, A: 255}
	boxWidth = 2
)

const (
	cameraQuality  = 70
	cameraInterval = 100 * time.Millisecond
)

// screen renders frames with the overlay burned in and streams them as
// JPEG to camera clients.
type screen struct {
	hub     *hub.Hub
	encoder attend.JPEGEncoder

	mu       sync.Mutex
	width    int
	height   int
	rects    []image.Rectangle
	canvas   *image.RGBA
	lastSent time.Time
}

func newScreen(h *hub.Hub) *screen {
	return &screen{hub: h, encoder: attend.JPEGEncoder{Quality: cameraQuality}}
}

func (sc *screen) render(frame image.Image) {
	b := frame.Bounds()

	sc.mu.Lock()
	sc.width, sc.height = b.Dx(), b.Dy()
	if sc.hub.ClientCount() == 0 || time.Since(sc.lastSent) < cameraInterval {
		sc.mu.Unlock()
		return
	}
	sc.lastSent = time.Now()

	if sc.canvas == nil || sc.canvas.Bounds().Size() != b.Size() {
		sc.canvas = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(sc.canvas, sc.canvas.Bounds(), frame, b.Min, draw.Src)
	for _, r := range sc.rects {
		strokeRect(sc.canvas, r, boxColor, boxWidth)
	}
	data, err := sc.encoder.Encode(sc.canvas)
	sc.mu.Unlock()

	if err == nil {
		sc.hub.BroadcastBinary(data)
	}
}

// strokeRect draws the outline of r, width pixels thick, inside r.
func strokeRect(img draw.Image, r image.Rectangle, c color.Color, width int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	w := min(width, r.Dx(), r.Dy())
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

// Render streams the frame to camera clients.
func (s *Server) Render(frame image.Image) {
	s.screen.render(frame)
}

// Size returns the size of the last rendered frame.
func (s *Server) Size() (int, int) {
	s.screen.mu.Lock()
	defer s.screen.mu.Unlock()
	return s.screen.width, s.screen.height
}

// ClearOverlay removes every face box.
func (s *Server) ClearOverlay() {
	s.screen.mu.Lock()
	s.screen.rects = nil
	s.screen.mu.Unlock()
}

// StrokeRect adds a face box in frame coordinates.
func (s *Server) StrokeRect(r image.Rectangle) {
	s.screen.mu.Lock()
	s.screen.rects = append(s.screen.rects, r)
	s.screen.mu.Unlock()
}

// Clear blanks the camera view.
func (s *Server) Clear() {
	s.screen.mu.Lock()
	s.screen.width, s.screen.height = 0, 0
	s.screen.rects = nil
	s.screen.canvas = nil
	s.screen.mu.Unlock()
}
