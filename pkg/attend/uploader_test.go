package attend

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/teslashibe/go-attend/pkg/feed"
	"github.com/teslashibe/go-attend/pkg/upload"
)

func TestUploader_CaptureMatch(t *testing.T) {
	sender := upload.NewMock(true)
	u := NewUploader(feed.NewStatic(feed.TestPattern(640, 480)), sender, UploaderOptions{
		NewID: func() string { return "cap-1" },
	})

	if u.InFlight() {
		t.Fatal("in flight before any capture")
	}
	if u.Message() != "" {
		t.Errorf("initial message = %q, want empty", u.Message())
	}

	res, err := u.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !res.Matched || res.Message != upload.MessageFound || res.ID != "cap-1" {
		t.Errorf("result = %+v", res)
	}
	if u.Message() != upload.MessageFound {
		t.Errorf("Message = %q, want %q", u.Message(), upload.MessageFound)
	}
	if u.InFlight() {
		t.Error("in flight after the response resolved")
	}

	reqs := sender.Requests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Filename != "capture.jpg" || req.ContentType != "image/jpeg" || req.ID != "cap-1" {
		t.Errorf("request = %+v", req)
	}
	img, err := jpeg.Decode(bytes.NewReader(req.Data))
	if err != nil {
		t.Fatalf("upload is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("uploaded size = %dx%d, want native 640x480", b.Dx(), b.Dy())
	}
}

func TestUploader_CaptureNoMatch(t *testing.T) {
	u := NewUploader(feed.NewStatic(feed.TestPattern(32, 32)), upload.NewMock(false), UploaderOptions{})

	res, err := u.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Matched || u.Message() != upload.MessageNotFound {
		t.Errorf("matched=%v message=%q", res.Matched, u.Message())
	}
}

func TestUploader_SurfaceFollowsFrameSize(t *testing.T) {
	src := feed.NewStatic(feed.TestPattern(64, 48))
	sender := upload.NewMock(true)
	u := NewUploader(src, sender, UploaderOptions{})

	if _, err := u.Capture(context.Background()); err != nil {
		t.Fatalf("first Capture: %v", err)
	}
	src.SetFrame(feed.TestPattern(20, 10))
	if _, err := u.Capture(context.Background()); err != nil {
		t.Fatalf("second Capture: %v", err)
	}

	reqs := sender.Requests()
	want := []image.Point{{64, 48}, {20, 10}}
	for i, req := range reqs {
		img, err := jpeg.Decode(bytes.NewReader(req.Data))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if got := img.Bounds().Size(); got != want[i] {
			t.Errorf("request %d size = %v, want %v", i, got, want[i])
		}
	}
}

func TestUploader_SubImageOrigin(t *testing.T) {
	full := feed.TestPattern(100, 100)
	sub := full.SubImage(image.Rect(50, 50, 100, 100))
	sender := upload.NewMock(true)
	u := NewUploader(feed.NewStatic(sub), sender, UploaderOptions{})

	if _, err := u.Capture(context.Background()); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(sender.Requests()[0].Data))
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got != (image.Point{50, 50}) {
		t.Errorf("size = %v, want 50x50", got)
	}
}

func TestUploader_SecondCaptureWhileInFlight(t *testing.T) {
	sender := newBlockingSender(true)
	u := NewUploader(feed.NewStatic(feed.TestPattern(16, 16)), sender, UploaderOptions{})

	done := make(chan error, 1)
	go func() {
		_, err := u.Capture(context.Background())
		done <- err
	}()
	<-sender.entered

	if !u.InFlight() {
		t.Fatal("flag should be set while the request is on the wire")
	}
	if _, err := u.Capture(context.Background()); !errors.Is(err, ErrUploadInFlight) {
		t.Errorf("second Capture err = %v, want ErrUploadInFlight", err)
	}

	close(sender.release)
	if err := <-done; err != nil {
		t.Fatalf("first Capture: %v", err)
	}
	if sender.Count() != 1 {
		t.Errorf("sent %d requests, want 1", sender.Count())
	}
	if u.InFlight() {
		t.Error("flag should be cleared after the response")
	}
}

func TestUploader_EncodeFailure(t *testing.T) {
	sender := upload.NewMock(true)
	var sawFlag bool
	var u *Uploader
	u = NewUploader(feed.NewStatic(feed.TestPattern(16, 16)), sender, UploaderOptions{
		Encoder: EncoderFunc(func(image.Image) ([]byte, error) {
			return nil, errors.New("codec unavailable")
		}),
		OnChange: func() { sawFlag = sawFlag || u.InFlight() },
	})

	_, err := u.Capture(context.Background())
	if !errors.Is(err, ErrEncodingFailure) {
		t.Fatalf("err = %v, want ErrEncodingFailure", err)
	}
	if sawFlag || u.InFlight() {
		t.Error("flag must never be set on an encode failure")
	}
	if sender.Count() != 0 {
		t.Errorf("sent %d requests, want 0", sender.Count())
	}
}

func TestUploader_NoFrame(t *testing.T) {
	sender := upload.NewMock(true)
	u := NewUploader(feed.NewStatic(nil), sender, UploaderOptions{})

	_, err := u.Capture(context.Background())
	if !errors.Is(err, ErrEncodingFailure) || !errors.Is(err, feed.ErrNoFrame) {
		t.Errorf("err = %v, want ErrEncodingFailure wrapping ErrNoFrame", err)
	}
	if sender.Count() != 0 {
		t.Error("nothing should be sent without a frame")
	}
}

func TestUploader_TransportFailureKeepsMessage(t *testing.T) {
	fail := false
	sender := &upload.Mock{
		SendFunc: func(ctx context.Context, req upload.Request) (*upload.Response, error) {
			if fail {
				return nil, &upload.APIError{StatusCode: 503}
			}
			return &upload.Response{Match: upload.Bool(true)}, nil
		},
	}
	stats := &Stats{}
	u := NewUploader(feed.NewStatic(feed.TestPattern(16, 16)), sender, UploaderOptions{Stats: stats})

	if _, err := u.Capture(context.Background()); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	fail = true
	_, err := u.Capture(context.Background())
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("err = %v, want ErrTransportFailure", err)
	}
	var apiErr *upload.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("err should wrap the APIError, got %v", err)
	}
	if u.Message() != upload.MessageFound {
		t.Errorf("message = %q, want unchanged %q", u.Message(), upload.MessageFound)
	}
	if u.InFlight() {
		t.Error("flag should be cleared after a transport failure")
	}

	snap := stats.Snapshot()
	if snap.Uploads != 1 || snap.TransportErrors != 1 || snap.Captures != 2 || snap.AuthErrors != 0 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestUploader_RejectedCredentials(t *testing.T) {
	tests := []struct {
		status   int
		wantAuth int64
	}{
		{401, 1},
		{403, 1},
		{500, 0},
	}

	for _, tc := range tests {
		sender := &upload.Mock{
			SendFunc: func(ctx context.Context, req upload.Request) (*upload.Response, error) {
				return nil, &upload.APIError{StatusCode: tc.status}
			},
		}
		stats := &Stats{}
		u := NewUploader(feed.NewStatic(feed.TestPattern(16, 16)), sender, UploaderOptions{Stats: stats})

		if _, err := u.Capture(context.Background()); !errors.Is(err, ErrTransportFailure) {
			t.Errorf("status %d: err = %v, want ErrTransportFailure", tc.status, err)
		}
		snap := stats.Snapshot()
		if snap.AuthErrors != tc.wantAuth || snap.TransportErrors != 1 {
			t.Errorf("status %d: stats = %+v, want %d auth errors", tc.status, snap, tc.wantAuth)
		}
	}
}

func TestUploader_AmbiguousResponse(t *testing.T) {
	sender := &upload.Mock{
		SendFunc: func(ctx context.Context, req upload.Request) (*upload.Response, error) {
			return &upload.Response{Name: "Ada"}, nil
		},
	}
	u := NewUploader(feed.NewStatic(feed.TestPattern(16, 16)), sender, UploaderOptions{})

	_, err := u.Capture(context.Background())
	if !errors.Is(err, ErrTransportFailure) || !errors.Is(err, upload.ErrAmbiguousResponse) {
		t.Errorf("err = %v, want ErrTransportFailure wrapping ErrAmbiguousResponse", err)
	}
	if u.Message() != "" {
		t.Errorf("message = %q, want empty", u.Message())
	}
}

func TestJPEGEncoder(t *testing.T) {
	tests := []struct {
		name    string
		quality int
	}{
		{"default quality", 0},
		{"low quality", 10},
		{"high quality", 90},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := JPEGEncoder{Quality: tc.quality}.Encode(feed.TestPattern(8, 8))
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
				t.Error("missing JPEG SOI marker")
			}
		})
	}
}
