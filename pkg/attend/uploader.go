package attend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/upload"
)

// FrameSource provides the current frame of a live feed.
type FrameSource interface {
	Frame() (image.Image, error)
}

// Result describes one completed upload.
type Result struct {
	ID       string
	Matched  bool
	Message  string
	Response *upload.Response
	Duration time.Duration
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	Encoder  Encoder // default JPEGEncoder at quality 90
	Filename string  // default capture.jpg
	Logger   *slog.Logger
	Stats    *Stats

	// OnChange is called whenever InFlight or Message changes.
	OnChange func()

	// NewID generates capture IDs. Defaults to uuid.NewString.
	NewID func() string
}

// Uploader snapshots the current frame, encodes it and sends it to the
// backend. At most one upload is in flight at a time.
type Uploader struct {
	source   FrameSource
	sender   upload.Sender
	encoder  Encoder
	filename string
	logger   *slog.Logger
	stats    *Stats
	onChange func()
	newID    func() string

	inFlight atomic.Bool

	// surface is the off-screen capture buffer, resized to each frame.
	surfaceMu sync.Mutex
	surface   *image.RGBA

	mu      sync.RWMutex
	message string
	lastID  string
	lastAt  time.Time
}

// NewUploader creates an uploader reading frames from source.
func NewUploader(source FrameSource, sender upload.Sender, opts UploaderOptions) *Uploader {
	u := &Uploader{
		source:   source,
		sender:   sender,
		encoder:  opts.Encoder,
		filename: opts.Filename,
		logger:   opts.Logger,
		stats:    opts.Stats,
		onChange: opts.OnChange,
		newID:    opts.NewID,
	}
	if u.encoder == nil {
		u.encoder = JPEGEncoder{Quality: 90}
	}
	if u.filename == "" {
		u.filename = "capture.jpg"
	}
	if u.logger == nil {
		u.logger = log.Component("uploader")
	}
	if u.stats == nil {
		u.stats = &Stats{}
	}
	if u.newID == nil {
		u.newID = uuid.NewString
	}
	return u
}

// InFlight reports whether an upload is pending.
func (u *Uploader) InFlight() bool {
	return u.inFlight.Load()
}

// Message returns the last result message, empty before the first verdict.
func (u *Uploader) Message() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.message
}

// Last returns the ID and time of the last successful upload.
func (u *Uploader) Last() (string, time.Time) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastID, u.lastAt
}

// Capture uploads the current frame and waits for the verdict.
//
// It returns ErrUploadInFlight without sending if another upload is pending,
// ErrEncodingFailure if the frame cannot be captured or encoded, and
// ErrTransportFailure if the send fails or the answer has no verdict. The
// message only changes on a verdict, and the in-flight flag is only held
// while the request is on the wire.
func (u *Uploader) Capture(ctx context.Context) (Result, error) {
	if u.inFlight.Load() {
		u.stats.busy.Add(1)
		return Result{}, ErrUploadInFlight
	}

	data, err := u.snapshot()
	if err != nil {
		u.stats.encodeErrors.Add(1)
		u.logger.Error("capture encode failed", "err", err)
		return Result{}, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	u.stats.captures.Add(1)

	if !u.inFlight.CompareAndSwap(false, true) {
		u.stats.busy.Add(1)
		return Result{}, ErrUploadInFlight
	}
	u.changed()
	defer func() {
		u.inFlight.Store(false)
		u.changed()
	}()

	id := u.newID()
	u.logger.Debug("uploading capture", "capture_id", id, "bytes", len(data))

	start := time.Now()
	resp, err := u.sender.Send(ctx, upload.Request{
		ID:          id,
		Filename:    u.filename,
		ContentType: u.encoder.ContentType(),
		Data:        data,
	})
	elapsed := time.Since(start)
	if err == nil {
		_, err = resp.Matched()
	}
	if err != nil {
		u.stats.recordTransportError(elapsed)
		var apiErr *upload.APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			u.stats.authErrors.Add(1)
			u.logger.Error("backend rejected kiosk credentials", "capture_id", id, "status", apiErr.StatusCode)
		} else {
			u.logger.Warn("upload failed", "capture_id", id, "err", err, "duration", elapsed)
		}
		return Result{ID: id, Duration: elapsed}, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	matched, _ := resp.Matched()
	msg := resp.ResultMessage()

	u.mu.Lock()
	u.message = msg
	u.lastID = id
	u.lastAt = time.Now()
	u.mu.Unlock()

	u.stats.recordUpload(matched, elapsed)
	u.logger.Info("upload complete", "capture_id", id, "matched", matched, "duration", elapsed)

	return Result{
		ID:       id,
		Matched:  matched,
		Message:  msg,
		Response: resp,
		Duration: elapsed,
	}, nil
}

// snapshot draws the current frame onto the off-screen surface at native
// resolution and encodes it.
func (u *Uploader) snapshot() ([]byte, error) {
	frame, err := u.source.Frame()
	if err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Empty() {
		return nil, errors.New("empty frame")
	}

	u.surfaceMu.Lock()
	defer u.surfaceMu.Unlock()

	if u.surface == nil || u.surface.Bounds().Dx() != b.Dx() || u.surface.Bounds().Dy() != b.Dy() {
		u.surface = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(u.surface, u.surface.Bounds(), frame, b.Min, draw.Src)

	return u.encoder.Encode(u.surface)
}

func (u *Uploader) changed() {
	if u.onChange != nil {
		u.onChange()
	}
}
