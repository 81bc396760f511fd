package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/pkg/detection"
	"github.com/teslashibe/go-attend/pkg/feed"
	"github.com/teslashibe/go-attend/pkg/upload"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, feed.TestPattern(w, h), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, field, contentType string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="capture.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest("POST", DefaultPath, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload_Verdicts(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
		status  string
		message string
	}{
		{"found", Verdict{Matched: true, UserID: "u1", Name: "Ada"}, upload.StatusFound, upload.MessageFound},
		{"not found", Verdict{}, upload.StatusNotFound, upload.MessageNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewServer(StaticMatcher{Verdict: tc.verdict}, Options{})
			req := multipartRequest(t, "image", "image/jpeg", jpegBytes(t, 64, 48))
			req.Header.Set(upload.HeaderCaptureID, "cap-7")

			resp, err := s.App().Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Fatalf("status = %d", resp.StatusCode)
			}

			var got upload.Response
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Match == nil || *got.Match != tc.verdict.Matched {
				t.Errorf("match = %v, want %v", got.Match, tc.verdict.Matched)
			}
			if got.Status != tc.status || got.Message != tc.message || got.Name != tc.verdict.Name {
				t.Errorf("response = %+v", got)
			}

			checkIns := s.CheckIns()
			if len(checkIns) != 1 {
				t.Fatalf("check-ins = %d, want 1", len(checkIns))
			}
			ci := checkIns[0]
			if ci.ID != "cap-7" || ci.Width != 64 || ci.Height != 48 || ci.Filename != "capture.jpg" {
				t.Errorf("check-in = %+v", ci)
			}
		})
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		contentType string
		data        []byte
		wantStatus  int
	}{
		{"wrong field", "file", "image/jpeg", []byte("x"), 400},
		{"not an image type", "image", "text/plain", []byte("hello"), 415},
		{"undecodable", "image", "image/jpeg", []byte("not a jpeg"), 422},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewServer(StaticMatcher{}, Options{})
			resp, err := s.App().Test(multipartRequest(t, tc.field, tc.contentType, tc.data))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if len(s.CheckIns()) != 0 {
				t.Error("rejected uploads must not be recorded")
			}
		})
	}
}

func TestUpload_MatcherError(t *testing.T) {
	s := NewServer(MatcherFunc(func(context.Context, image.Image) (Verdict, error) {
		return Verdict{}, errors.New("identity service down")
	}), Options{})

	resp, err := s.App().Test(multipartRequest(t, "image", "image/jpeg", jpegBytes(t, 8, 8)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestListAndHealth(t *testing.T) {
	s := NewServer(StaticMatcher{Verdict: Verdict{Matched: true}}, Options{Recent: 2})
	for i := 0; i < 3; i++ {
		req := multipartRequest(t, "image", "image/jpeg", jpegBytes(t, 8, 8))
		req.Header.Set(upload.HeaderCaptureID, string(rune('a'+i)))
		if _, err := s.App().Test(req); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := s.App().Test(httptest.NewRequest("GET", DefaultPath, nil))
	if err != nil {
		t.Fatal(err)
	}
	var list []CheckIn
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("recent = %+v, want newest two (c, b)", list)
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]any
	json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "ok" || health["total"] != float64(3) || health["matched"] != float64(3) {
		t.Errorf("health = %v", health)
	}
}

func TestDetectorMatcher(t *testing.T) {
	img := feed.TestPattern(8, 8)

	m := DetectorMatcher{Detector: detection.NewMock(detection.Detection{W: 4, H: 4}), UserID: "u1", Name: "Kiosk User"}
	v, err := m.Match(context.Background(), img)
	if err != nil || !v.Matched || v.Name != "Kiosk User" {
		t.Errorf("face verdict = %+v, %v", v, err)
	}

	m.Detector = detection.NewMock()
	v, err = m.Match(context.Background(), img)
	if err != nil || v.Matched {
		t.Errorf("no-face verdict = %+v, %v", v, err)
	}

	// the largest face decides, so a close face passes the size floor
	m.MinArea = 30
	m.Detector = detection.NewMock(detection.Detection{W: 2, H: 2}, detection.Detection{W: 6, H: 6})
	if v, _ := m.Match(context.Background(), img); !v.Matched {
		t.Errorf("close face verdict = %+v, want match", v)
	}
	m.Detector = detection.NewMock(detection.Detection{W: 4, H: 4})
	if v, _ := m.Match(context.Background(), img); v.Matched {
		t.Errorf("distant face verdict = %+v, want no match", v)
	}
	m.MinArea = 0

	m.Detector = &detection.Mock{DetectFunc: func(image.Image) ([]detection.Detection, error) {
		return nil, errors.New("boom")
	}}
	if _, err := m.Match(context.Background(), img); err == nil {
		t.Error("detector error should propagate")
	}
}

func TestUploadClientRoundTrip(t *testing.T) {
	s := NewServer(StaticMatcher{Verdict: Verdict{Matched: true, Name: "Ada"}}, Options{})
	go s.Listen(":18096")
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	client, err := upload.NewClient("http://localhost:18096"+DefaultPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Send(context.Background(), upload.Request{
		ID:       "round-trip",
		Filename: "capture.jpg",
		Data:     jpegBytes(t, 32, 24),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.ResultMessage() != upload.MessageFound || resp.Name != "Ada" {
		t.Errorf("response = %+v", resp)
	}
	if got := s.CheckIns(); len(got) != 1 || got[0].ID != "round-trip" {
		t.Errorf("check-ins = %+v", got)
	}
}
