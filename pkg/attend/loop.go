package attend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/detection"
	"github.com/teslashibe/go-attend/pkg/feed"
)

// TickResult summarizes one detection tick.
type TickResult struct {
	Skipped   bool
	Faces     int
	Triggered bool
}

// LoopOptions configures a DetectionLoop.
type LoopOptions struct {
	Interval time.Duration
	Logger   *slog.Logger
	Stats    *Stats

	// OnFaces is called after every completed scan with the drawn boxes.
	OnFaces func(present bool, boxes []Box)

	// OnError receives detection and upload failures.
	OnError func(err error)
}

// DetectionLoop periodically scans the feed for faces, draws them on the
// display and triggers the uploader when a face is present.
type DetectionLoop struct {
	source   FrameSource
	display  feed.Display
	detector detection.Detector
	uploader *Uploader

	interval time.Duration
	logger   *slog.Logger
	stats    *Stats
	onFaces  func(bool, []Box)
	onError  func(error)

	uploads sync.WaitGroup
}

// NewDetectionLoop creates a loop. The detector is owned by the caller.
func NewDetectionLoop(source FrameSource, display feed.Display, detector detection.Detector, uploader *Uploader, opts LoopOptions) *DetectionLoop {
	l := &DetectionLoop{
		source:   source,
		display:  display,
		detector: detector,
		uploader: uploader,
		interval: opts.Interval,
		logger:   opts.Logger,
		stats:    opts.Stats,
		onFaces:  opts.OnFaces,
		onError:  opts.OnError,
	}
	if l.interval <= 0 {
		l.interval = 5 * time.Second
	}
	if l.logger == nil {
		l.logger = log.Component("detect")
	}
	if l.stats == nil {
		l.stats = &Stats{}
	}
	return l
}

// Run ticks until ctx is cancelled. Uploads started by a tick run in the
// background; call Wait after Run returns to drain them.
func (l *DetectionLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("detection loop started", "interval", l.interval)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("detection loop stopped")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs a single detection pass.
func (l *DetectionLoop) Tick(ctx context.Context) TickResult {
	dw, dh := l.display.Size()
	if dw <= 0 || dh <= 0 {
		l.stats.recordTick(true, false)
		return TickResult{Skipped: true}
	}

	frame, err := l.source.Frame()
	if err != nil {
		l.stats.recordTick(true, false)
		return TickResult{Skipped: true}
	}
	b := frame.Bounds()
	if b.Empty() {
		l.stats.recordTick(true, false)
		return TickResult{Skipped: true}
	}

	dets, err := l.detector.Detect(frame)
	if err != nil {
		l.stats.recordTick(true, false)
		l.stats.detectErrors.Add(1)
		err = fmt.Errorf("%w: %w", ErrDetectionFailure, err)
		l.logger.Error("detection failed", "err", err)
		l.report(err)
		return TickResult{Skipped: true}
	}

	present := len(dets) > 0
	l.stats.recordTick(false, present)

	l.display.ClearOverlay()
	boxes := make([]Box, 0, len(dets))
	for _, d := range detection.ScaleAll(dets, b.Dx(), b.Dy(), dw, dh) {
		r := d.Rect()
		l.display.StrokeRect(r)
		boxes = append(boxes, BoxFromRect(r))
	}
	if l.onFaces != nil {
		l.onFaces(present, boxes)
	}
	if p, ok := detection.Primary(dets); ok {
		l.logger.Debug("face detected", "faces", len(dets),
			"x", int(p.X), "y", int(p.Y), "w", int(p.W), "h", int(p.H), "confidence", p.Confidence)
	}

	res := TickResult{Faces: len(dets)}
	if present && !l.uploader.InFlight() {
		res.Triggered = true
		l.trigger(ctx)
	}
	return res
}

// Wait blocks until every upload started by Tick has resolved.
func (l *DetectionLoop) Wait() {
	l.uploads.Wait()
}

func (l *DetectionLoop) trigger(ctx context.Context) {
	l.uploads.Add(1)
	go func() {
		defer l.uploads.Done()
		if _, err := l.uploader.Capture(ctx); err != nil && !errors.Is(err, ErrUploadInFlight) {
			l.report(err)
		}
	}()
}

func (l *DetectionLoop) report(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}
