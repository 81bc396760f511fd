package feed

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// Static is an in-memory feed that always returns the same frame.
// Used for headless runs and tests.
type Static struct {
	mu     sync.RWMutex
	frame  image.Image
	closed bool
}

// NewStatic returns a feed serving frame. A nil frame yields ErrNoFrame
// until SetFrame is called.
func NewStatic(frame image.Image) *Static {
	return &Static{frame: frame}
}

// Frame returns the current frame.
func (s *Static) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

// SetFrame replaces the frame.
func (s *Static) SetFrame(frame image.Image) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
}

// Close marks the feed closed.
func (s *Static) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Static) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// StaticAcquirer hands out a fixed feed, or a fixed error.
type StaticAcquirer struct {
	Feed Feed
	Err  error

	mu    sync.Mutex
	calls int
}

// Acquire returns Feed or Err.
func (a *StaticAcquirer) Acquire(ctx context.Context) (Feed, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Feed, nil
}

// Calls returns how many times Acquire was invoked.
func (a *StaticAcquirer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// TestPattern returns a w x h frame with a simple gradient, handy as a
// placeholder feed when no camera is attached.
func TestPattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / max(w, 1)),
				G: uint8(y * 255 / max(h, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}
