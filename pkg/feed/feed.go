// Package feed acquires live video feeds and attaches them to display surfaces.
package feed

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-attend/internal/log"
)

// Sentinel errors for feed acquisition and reads.
var (
	// ErrPermissionDenied is returned when access to the capture device is refused.
	ErrPermissionDenied = errors.New("feed: permission denied")

	// ErrDeviceUnavailable is returned when the device is missing or fails.
	ErrDeviceUnavailable = errors.New("feed: device unavailable")

	// ErrNoFrame is returned when no frame has been received yet.
	ErrNoFrame = errors.New("feed: no frame available")

	// ErrClosed is returned when reading from a closed feed.
	ErrClosed = errors.New("feed: closed")
)

// DefaultRenderInterval is roughly 15 FPS.
const DefaultRenderInterval = 66 * time.Millisecond

// Feed is a live video stream.
type Feed interface {
	// Frame returns the most recent frame at native resolution.
	Frame() (image.Image, error)

	// Close stops the stream and releases the device.
	Close() error
}

// Acquirer requests a feed from a capture backend.
type Acquirer interface {
	Acquire(ctx context.Context) (Feed, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context) (Feed, error)

// Acquire calls f.
func (f AcquirerFunc) Acquire(ctx context.Context) (Feed, error) {
	return f(ctx)
}

// Display is a surface that renders frames and a rectangle overlay.
type Display interface {
	// Render draws a frame on the surface.
	Render(frame image.Image)

	// Size returns the current surface size. Zero means not ready.
	Size() (width, height int)

	// ClearOverlay removes every overlay rectangle.
	ClearOverlay()

	// StrokeRect adds an overlay rectangle in surface coordinates.
	StrokeRect(r image.Rectangle)

	// Clear blanks the surface and its overlay.
	Clear()
}

// Options configures Start.
type Options struct {
	// RenderInterval is how often the latest frame is pushed to the display.
	RenderInterval time.Duration

	// OnError is called when acquisition fails.
	OnError func(err error)

	Logger *slog.Logger
}

// Session is an acquired feed attached to a display.
// It implements Feed; closing it stops rendering and releases the feed.
type Session struct {
	feed    Feed
	display Display
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start requests a feed and attaches it to display for continuous rendering.
// On failure the error is logged and reported, the display is left blank and
// no retry is attempted. Rendering stops when ctx is cancelled or the
// session is closed.
func Start(ctx context.Context, acq Acquirer, display Display, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Component("feed")
	}
	if opts.RenderInterval <= 0 {
		opts.RenderInterval = DefaultRenderInterval
	}

	f, err := acq.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		logger.Error("camera access failed", "err", err)
		if display != nil {
			display.Clear()
		}
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		feed:    f,
		display: display,
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if display == nil {
		close(s.done)
	} else {
		go s.render(ctx, opts.RenderInterval)
	}

	logger.Info("feed attached", "render_interval", opts.RenderInterval)
	return s, nil
}

func (s *Session) render(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := s.feed.Frame()
			if err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				continue
			}
			s.display.Render(frame)
		}
	}
}

// Frame returns the current frame of the underlying feed.
func (s *Session) Frame() (image.Image, error) {
	return s.feed.Frame()
}

// Display returns the attached display, or nil.
func (s *Session) Display() Display {
	return s.display
}

// Done is closed once the render loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops rendering, blanks the display and closes the feed. Safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.display != nil {
			s.display.Clear()
		}
		err = s.feed.Close()
		s.logger.Info("feed closed")
	})
	return err
}
