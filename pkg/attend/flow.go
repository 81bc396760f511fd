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
	"github.com/teslashibe/go-attend/pkg/upload"
)

// Options wires a Flow to its collaborators.
type Options struct {
	Config Config

	Acquirer feed.Acquirer
	Sender   upload.Sender

	// Display shows the feed. Nil uses a headless MemoryDisplay.
	Display feed.Display

	// Detector is required in ModeDetect and owned by the caller.
	Detector detection.Detector

	// Encoder defaults to JPEGEncoder at Config.Quality.
	Encoder Encoder

	Observer Observer
	Logger   *slog.Logger
}

// Flow is one kiosk session: feed, optional detection loop and uploader.
type Flow struct {
	cfg      Config
	acq      feed.Acquirer
	sender   upload.Sender
	display  feed.Display
	detector detection.Detector
	encoder  Encoder
	observer Observer
	logger   *slog.Logger
	stats    *Stats

	mu          sync.RWMutex
	session     *feed.Session
	uploader    *Uploader
	loop        *DetectionLoop
	facePresent bool
	boxes       []Box
	started     bool
	closed      bool

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	uploads sync.WaitGroup
}

// New validates opts and creates a flow. Nothing runs until Start.
func New(opts Options) (*Flow, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Acquirer == nil {
		return nil, errors.New("attend: acquirer is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("attend: sender is required")
	}
	if opts.Config.Mode == ModeDetect && opts.Detector == nil {
		return nil, ErrNoDetector
	}

	f := &Flow{
		cfg:      opts.Config,
		acq:      opts.Acquirer,
		sender:   opts.Sender,
		display:  opts.Display,
		detector: opts.Detector,
		encoder:  opts.Encoder,
		observer: opts.Observer,
		logger:   opts.Logger,
		stats:    &Stats{},
	}
	if f.display == nil {
		f.display = feed.NewMemoryDisplay(0, 0)
	}
	if f.encoder == nil {
		f.encoder = JPEGEncoder{Quality: f.cfg.Quality}
	}
	if f.observer == nil {
		f.observer = NopObserver{}
	}
	if f.logger == nil {
		f.logger = log.Component("attend")
	}
	return f, nil
}

// Start acquires the feed and, depending on the mode, starts the detection
// loop or the upload timer. If acquisition fails nothing else is started.
// Background work stops when ctx is cancelled or Close is called.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.started {
		f.mu.Unlock()
		return errors.New("attend: flow already started")
	}
	f.started = true
	f.mu.Unlock()

	session, err := feed.Start(ctx, f.acq, f.display, feed.Options{
		RenderInterval: f.cfg.RenderInterval,
		OnError:        f.observer.OnError,
		Logger:         f.logger.With("stage", "feed"),
	})
	if err != nil {
		f.publish()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	uploader := NewUploader(session, f.sender, UploaderOptions{
		Encoder:  f.encoder,
		Filename: f.cfg.Filename,
		Logger:   f.logger.With("stage", "uploader"),
		Stats:    f.stats,
		OnChange: f.publish,
	})

	var loop *DetectionLoop
	if f.cfg.Mode == ModeDetect {
		loop = NewDetectionLoop(session, f.display, f.detector, uploader, LoopOptions{
			Interval: f.cfg.DetectInterval,
			Logger:   f.logger.With("stage", "detect"),
			Stats:    f.stats,
			OnFaces:  f.setFaces,
			OnError:  f.observer.OnError,
		})
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		session.Close()
		return ErrClosed
	}
	f.session = session
	f.uploader = uploader
	f.loop = loop
	f.runCtx = runCtx
	f.cancel = cancel

	switch f.cfg.Mode {
	case ModeDetect:
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			loop.Run(runCtx)
		}()
	case ModeInterval:
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.runInterval(runCtx, uploader)
		}()
	}
	f.mu.Unlock()

	f.logger.Info("flow started", "mode", f.cfg.Mode)
	f.publish()
	return nil
}

// runInterval captures on a fixed timer without detection gating.
func (f *Flow) runInterval(ctx context.Context, u *Uploader) {
	ticker := time.NewTicker(f.cfg.UploadInterval)
	defer ticker.Stop()

	f.logger.Info("upload timer started", "interval", f.cfg.UploadInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if u.InFlight() {
				continue
			}
			f.uploads.Add(1)
			go func() {
				defer f.uploads.Done()
				if _, err := u.Capture(ctx); err != nil && !errors.Is(err, ErrUploadInFlight) {
					f.observer.OnError(err)
				}
			}()
		}
	}
}

// Capture performs an explicit capture and waits for the verdict. The
// upload is cancelled when ctx is done or the flow is closed, and Close
// waits for it to resolve.
func (f *Flow) Capture(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Result{}, ErrClosed
	}
	u, runCtx := f.uploader, f.runCtx
	if u == nil {
		f.mu.Unlock()
		return Result{}, ErrNotStarted
	}
	f.uploads.Add(1)
	f.mu.Unlock()
	defer f.uploads.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	res, err := u.Capture(ctx)
	if err != nil && !errors.Is(err, ErrUploadInFlight) {
		f.observer.OnError(err)
	}
	return res, err
}

// State returns the current snapshot.
func (f *Flow) State() State {
	f.mu.RLock()
	s := State{
		Mode:        f.cfg.Mode,
		FeedLive:    f.session != nil && !f.closed,
		FacePresent: f.facePresent,
		Boxes:       append([]Box(nil), f.boxes...),
	}
	u := f.uploader
	f.mu.RUnlock()

	if u != nil {
		s.InFlight = u.InFlight()
		s.Message = u.Message()
		s.LastCaptureID, s.LastCapture = u.Last()
	}
	return s
}

// Stats returns the activity counters.
func (f *Flow) Stats() StatsSnapshot {
	return f.stats.Snapshot()
}

// Tick runs one detection pass immediately. It fails outside ModeDetect.
func (f *Flow) Tick(ctx context.Context) (TickResult, error) {
	f.mu.RLock()
	loop := f.loop
	f.mu.RUnlock()
	if loop == nil {
		return TickResult{}, fmt.Errorf("attend: no detection loop in %s mode", f.cfg.Mode)
	}
	return loop.Tick(ctx), nil
}

// Wait blocks until background work has stopped and pending uploads have
// resolved. It only returns after ctx is cancelled or Close is called.
func (f *Flow) Wait() {
	f.wg.Wait()
	f.mu.RLock()
	loop := f.loop
	f.mu.RUnlock()
	if loop != nil {
		loop.Wait()
	}
	f.uploads.Wait()
}

// Close stops the timers, waits for pending uploads and releases the feed.
// Safe to call more than once.
func (f *Flow) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cancel, session := f.cancel, f.session
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.Wait()

	var err error
	if session != nil {
		err = session.Close()
	}
	f.logger.Info("flow closed")
	f.publish()
	return err
}

func (f *Flow) setFaces(present bool, boxes []Box) {
	f.mu.Lock()
	f.facePresent = present
	f.boxes = boxes
	f.mu.Unlock()
	f.publish()
}

func (f *Flow) publish() {
	f.observer.OnState(f.State())
}
