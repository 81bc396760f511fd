package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/teslashibe/go-attend/internal/httpc"
	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/attend"
	"github.com/teslashibe/go-attend/pkg/detection"
	"github.com/teslashibe/go-attend/pkg/detection/cv"
	"github.com/teslashibe/go-attend/pkg/feed"
	"github.com/teslashibe/go-attend/pkg/feed/device"
	"github.com/teslashibe/go-attend/pkg/feed/webrtc"
	"github.com/teslashibe/go-attend/pkg/upload"
)

// sourceOptions are the feed settings that only exist as flags.
type sourceOptions struct {
	producer    string
	staticImage string
}

// kiosk holds everything a flow needs, so commands can build and release it
// in one place.
type kiosk struct {
	flow     *attend.Flow
	detector detection.Detector
	window   *device.Window
}

type kioskOptions struct {
	mode      attend.Mode
	source    sourceOptions
	displays  []feed.Display
	observers []attend.Observer
	window    bool
}

func newKiosk(ctx context.Context, opts kioskOptions) (*kiosk, error) {
	acq, err := newAcquirer(opts.source)
	if err != nil {
		return nil, err
	}
	sender, err := newSender(ctx)
	if err != nil {
		return nil, err
	}

	k := &kiosk{}
	if opts.mode == attend.ModeDetect {
		if k.detector, err = newDetector(cfg.Detector, cfg.ModelPath); err != nil {
			return nil, err
		}
	}

	displays := opts.displays
	if opts.window {
		k.window = device.NewWindow("attend")
		displays = append(displays, k.window)
	}

	fc := attend.DefaultConfig()
	fc.Mode = opts.mode
	fc.DetectInterval = cfg.DetectInterval
	fc.UploadInterval = cfg.UploadInterval
	fc.Quality = cfg.Quality
	fc.Filename = cfg.Filename

	observers := append(attend.Observers{logObserver()}, opts.observers...)
	flow, err := attend.New(attend.Options{
		Config:   fc,
		Acquirer: acq,
		Sender:   sender,
		Display:  combineDisplays(displays),
		Detector: k.detector,
		Observer: observers,
		Logger:   log.Component("attend"),
	})
	if err != nil {
		k.close()
		return nil, err
	}
	k.flow = flow
	return k, nil
}

// close releases the flow first, then what the flow was using.
func (k *kiosk) close() {
	if k.flow != nil {
		if err := k.flow.Close(); err != nil {
			log.Warn("flow close", "err", err)
		}
	}
	if k.detector != nil {
		k.detector.Close()
	}
	if k.window != nil {
		k.window.Close()
	}
}

func newAcquirer(opts sourceOptions) (feed.Acquirer, error) {
	switch cfg.Source {
	case "device":
		dc := device.DefaultConfig()
		dc.Device = cfg.Device
		return device.NewAcquirer(dc), nil
	case "webrtc":
		wc := webrtc.DefaultConfig(cfg.SignallingURL)
		wc.Producer = opts.producer
		return webrtc.NewAcquirer(wc), nil
	case "static":
		img, err := loadStaticImage(opts.staticImage)
		if err != nil {
			return nil, err
		}
		return &feed.StaticAcquirer{Feed: feed.NewStatic(img)}, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// loadStaticImage decodes path, or returns a test pattern when path is empty.
func loadStaticImage(path string) (image.Image, error) {
	if path == "" {
		return feed.TestPattern(640, 480), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open static image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode static image: %w", err)
	}
	return img, nil
}

func newDetector(kind, modelPath string) (detection.Detector, error) {
	dc := detection.DefaultConfig()
	dc.ModelPath = modelPath
	switch kind {
	case "yunet":
		d, err := cv.NewYuNet(dc)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "haar":
		d, err := cv.NewHaar(dc)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "none":
		return nil, attend.ErrNoDetector
	default:
		return nil, fmt.Errorf("unknown detector %q", kind)
	}
}

func newSender(ctx context.Context) (*upload.Client, error) {
	client := httpc.WithClientCredentials(ctx, httpc.NewClient(cfg.HTTPTimeout), httpc.Credentials{
		TokenURL:     cfg.OAuthTokenURL,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Scopes:       cfg.OAuthScopes,
	})
	return upload.NewClient(cfg.Endpoint, client)
}

func combineDisplays(displays []feed.Display) feed.Display {
	switch len(displays) {
	case 0:
		return nil
	case 1:
		return displays[0]
	default:
		return feed.MultiDisplay(displays)
	}
}

// logObserver logs verdict changes and reported failures.
func logObserver() attend.Observer {
	logger := log.Component("kiosk")
	var (
		mu     sync.Mutex
		lastID string
	)
	return attend.ObserverFuncs{
		State: func(s attend.State) {
			mu.Lock()
			seen := s.LastCaptureID == "" || s.LastCaptureID == lastID
			lastID = s.LastCaptureID
			mu.Unlock()
			if seen {
				return
			}
			logger.Info(s.Message, "capture_id", s.LastCaptureID)
		},
		Error: func(err error) {
			if errors.Is(err, attend.ErrUploadInFlight) {
				return
			}
			logger.Error("kiosk error", "err", err)
		},
	}
}
