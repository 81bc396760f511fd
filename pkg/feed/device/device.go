// Package device captures frames from a local camera with OpenCV and shows
// them in a desktop window.
package device

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/feed"
)

// Config configures a capture device.
type Config struct {
	// Device is a camera index ("0") or a path/URL OpenCV can open.
	Device string

	Width  int
	Height int
	FPS    int

	// StartTimeout bounds how long Acquire waits for the first frame.
	StartTimeout time.Duration
}

// DefaultConfig returns a 640x480 config for the first camera.
func DefaultConfig() Config {
	return Config{
		Device:       "0",
		Width:        640,
		Height:       480,
		FPS:          15,
		StartTimeout: 5 * time.Second,
	}
}

// Acquirer opens a local camera.
type Acquirer struct {
	Config Config
}

// NewAcquirer returns an acquirer for cfg.
func NewAcquirer(cfg Config) *Acquirer {
	return &Acquirer{Config: cfg}
}

// Acquire opens the device and waits for the first frame.
func (a *Acquirer) Acquire(ctx context.Context) (feed.Feed, error) {
	cfg := a.Config
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 5 * time.Second
	}

	vc, err := gocv.OpenVideoCapture(deviceArg(cfg.Device))
	if err != nil {
		return nil, classifyOpenError(cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s did not open", feed.ErrDeviceUnavailable, cfg.Device)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	c := &Camera{
		vc:     vc,
		buf:    feed.NewFrameBuffer(),
		logger: log.Component("device").With("device", cfg.Device),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go c.readLoop()

	waitCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	defer cancel()
	if err := c.buf.Wait(waitCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: no frame from %s: %v", feed.ErrDeviceUnavailable, cfg.Device, err)
	}

	c.logger.Info("camera opened", "width", vc.Get(gocv.VideoCaptureFrameWidth), "height", vc.Get(gocv.VideoCaptureFrameHeight))
	return c, nil
}

// Camera is an open capture device.
type Camera struct {
	vc     *gocv.VideoCapture
	buf    *feed.FrameBuffer
	logger *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (c *Camera) readLoop() {
	defer close(c.done)

	mat := gocv.NewMat()
	defer mat.Close()

	misses := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if !c.vc.Read(&mat) || mat.Empty() {
			misses++
			if misses == 30 {
				c.logger.Warn("camera stopped delivering frames")
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		img, err := mat.ToImage()
		if err != nil {
			c.logger.Debug("frame conversion failed", "err", err)
			continue
		}
		c.buf.Store(img)
	}
}

// Frame returns the latest frame.
func (c *Camera) Frame() (image.Image, error) {
	return c.buf.Load()
}

// Close stops capture and releases the device.
func (c *Camera) Close() error {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		c.buf.Close()
		c.vc.Close()
		c.logger.Info("camera closed")
	})
	return nil
}

// deviceArg turns "0" into an index so OpenCV picks the camera API.
func deviceArg(dev string) any {
	if id, err := strconv.Atoi(dev); err == nil {
		return id
	}
	return dev
}

func classifyOpenError(dev string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %s: %v", feed.ErrPermissionDenied, dev, err)
	}
	return fmt.Errorf("%w: %s: %v", feed.ErrDeviceUnavailable, dev, err)
}
