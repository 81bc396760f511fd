package attend

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/pkg/detection"
	"github.com/teslashibe/go-attend/pkg/feed"
	"github.com/teslashibe/go-attend/pkg/upload"
)

func newTestLoop(src FrameSource, display feed.Display, det detection.Detector, sender upload.Sender, opts LoopOptions) (*DetectionLoop, *Uploader) {
	u := NewUploader(src, sender, UploaderOptions{Stats: opts.Stats})
	return NewDetectionLoop(src, display, det, u, opts), u
}

func TestTick_DrawsOneRectPerDetection(t *testing.T) {
	tests := []struct {
		name     string
		displayW int
		displayH int
		dets     []detection.Detection
		want     []image.Rectangle
	}{
		{
			name:     "same size",
			displayW: 640, displayH: 480,
			dets: []detection.Detection{{X: 100, Y: 50, W: 80, H: 80}},
			want: []image.Rectangle{image.Rect(100, 50, 180, 130)},
		},
		{
			name:     "half size display",
			displayW: 320, displayH: 240,
			dets: []detection.Detection{
				{X: 100, Y: 50, W: 80, H: 80},
				{X: 400, Y: 200, W: 100, H: 120},
				{X: 0, Y: 0, W: 10, H: 10},
			},
			want: []image.Rectangle{
				image.Rect(50, 25, 90, 65),
				image.Rect(200, 100, 250, 160),
				image.Rect(0, 0, 5, 5),
			},
		},
		{
			name:     "non-uniform scale",
			displayW: 1280, displayH: 480,
			dets: []detection.Detection{{X: 10, Y: 10, W: 20, H: 20}},
			want: []image.Rectangle{image.Rect(20, 10, 60, 30)},
		},
		{
			name:     "no faces",
			displayW: 640, displayH: 480,
			dets: nil,
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			display := feed.NewMemoryDisplay(tc.displayW, tc.displayH)
			display.StrokeRect(image.Rect(1, 1, 2, 2)) // stale overlay from a previous tick

			var present bool
			var boxes []Box
			loop, _ := newTestLoop(feed.NewStatic(feed.TestPattern(640, 480)), display,
				detection.NewMock(tc.dets...), upload.NewMock(true), LoopOptions{
					OnFaces: func(p bool, b []Box) { present, boxes = p, b },
				})

			res := loop.Tick(context.Background())
			loop.Wait()

			rects := display.Rects()
			if len(rects) != len(tc.want) {
				t.Fatalf("drew %d rects, want %d: %v", len(rects), len(tc.want), rects)
			}
			for i := range rects {
				if rects[i] != tc.want[i] {
					t.Errorf("rect %d = %v, want %v", i, rects[i], tc.want[i])
				}
				if boxes[i].Rect() != tc.want[i] {
					t.Errorf("box %d = %+v, want %v", i, boxes[i], tc.want[i])
				}
			}
			if present != (len(tc.dets) > 0) {
				t.Errorf("present = %v", present)
			}
			if res.Faces != len(tc.dets) || res.Triggered != (len(tc.dets) > 0) {
				t.Errorf("result = %+v", res)
			}
			if display.OverlayClears() != 1 {
				t.Errorf("overlay cleared %d times, want 1", display.OverlayClears())
			}
		})
	}
}

func TestTick_ZeroSizeDisplaySkips(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"not rendered yet", 0, 0},
		{"zero width", 0, 480},
		{"zero height", 640, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var display feed.Display = feed.NewMemoryDisplay(0, 0)
			if tc.w != 0 || tc.h != 0 {
				display = sizedDisplay{MemoryDisplay: feed.NewMemoryDisplay(0, 0), w: tc.w, h: tc.h}
			}
			det := detection.NewMock(detection.Detection{X: 1, Y: 1, W: 5, H: 5})
			sender := upload.NewMock(true)
			loop, _ := newTestLoop(feed.NewStatic(feed.TestPattern(640, 480)), display, det, sender, LoopOptions{})

			res := loop.Tick(context.Background())
			loop.Wait()

			if !res.Skipped {
				t.Error("tick should be skipped")
			}
			if det.Calls() != 0 {
				t.Errorf("detector called %d times, want 0", det.Calls())
			}
			if sender.Count() != 0 {
				t.Error("no upload should start on a skipped tick")
			}
		})
	}
}

// sizedDisplay forces a size for edge cases MemoryDisplay cannot express.
type sizedDisplay struct {
	*feed.MemoryDisplay
	w, h int
}

func (d sizedDisplay) Size() (int, int) { return d.w, d.h }

func TestTick_NoFrameSkips(t *testing.T) {
	det := detection.NewMock()
	loop, _ := newTestLoop(feed.NewStatic(nil), feed.NewMemoryDisplay(640, 480), det, upload.NewMock(true), LoopOptions{})

	if res := loop.Tick(context.Background()); !res.Skipped {
		t.Error("tick without a frame should be skipped")
	}
	if det.Calls() != 0 {
		t.Error("detector should not run without a frame")
	}
}

func TestTick_DetectorErrorReportedAndLoopContinues(t *testing.T) {
	calls := 0
	det := &detection.Mock{DetectFunc: func(image.Image) ([]detection.Detection, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("model not loaded")
		}
		return []detection.Detection{{X: 1, Y: 1, W: 5, H: 5}}, nil
	}}
	var reported []error
	stats := &Stats{}
	display := feed.NewMemoryDisplay(640, 480)
	loop, _ := newTestLoop(feed.NewStatic(feed.TestPattern(640, 480)), display, det, upload.NewMock(true), LoopOptions{
		Stats:   stats,
		OnError: func(err error) { reported = append(reported, err) },
	})

	if res := loop.Tick(context.Background()); !res.Skipped {
		t.Error("failed detection should skip the tick")
	}
	if len(reported) != 1 || !errors.Is(reported[0], ErrDetectionFailure) {
		t.Fatalf("reported = %v, want one ErrDetectionFailure", reported)
	}
	if len(display.Rects()) != 0 {
		t.Error("nothing should be drawn on a failed tick")
	}

	if res := loop.Tick(context.Background()); res.Skipped || res.Faces != 1 {
		t.Errorf("second tick = %+v, want one face", res)
	}
	loop.Wait()

	if snap := stats.Snapshot(); snap.DetectErrors != 1 || snap.Ticks != 2 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestTick_NoSecondUploadWhileInFlight(t *testing.T) {
	sender := newBlockingSender(true)
	det := detection.NewMock(detection.Detection{X: 10, Y: 10, W: 50, H: 50})
	loop, u := newTestLoop(feed.NewStatic(feed.TestPattern(640, 480)), feed.NewMemoryDisplay(640, 480), det, sender, LoopOptions{})

	if res := loop.Tick(context.Background()); !res.Triggered {
		t.Fatal("first tick should trigger an upload")
	}
	<-sender.entered
	if !u.InFlight() {
		t.Fatal("upload should be in flight")
	}

	for i := 0; i < 3; i++ {
		res := loop.Tick(context.Background())
		if res.Triggered {
			t.Errorf("tick %d triggered while an upload was in flight", i+2)
		}
		if res.Faces != 1 {
			t.Errorf("tick %d should still detect and draw", i+2)
		}
	}

	close(sender.release)
	loop.Wait()

	if sender.Count() != 1 {
		t.Errorf("sent %d requests, want 1", sender.Count())
	}
	if u.InFlight() {
		t.Error("flag should be cleared")
	}
	if u.Message() != upload.MessageFound {
		t.Errorf("message = %q", u.Message())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	det := detection.NewMock()
	loop, _ := newTestLoop(feed.NewStatic(feed.TestPattern(64, 64)), feed.NewMemoryDisplay(64, 64), det, upload.NewMock(true), LoopOptions{
		Interval: 2 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	waitFor(t, "detection ticks", func() bool { return det.Calls() >= 2 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	calls := det.Calls()
	time.Sleep(20 * time.Millisecond)
	if det.Calls() != calls {
		t.Error("ticks continued after Run returned")
	}
}
