package cv

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-attend/pkg/detection"
)

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := detection.DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := NewYuNet(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestHaarNewInvalidPath(t *testing.T) {
	cfg := detection.Config{ModelPath: "/nonexistent/cascade.xml"}

	if _, err := NewHaar(cfg); err == nil {
		t.Error("Expected error for invalid cascade path")
	}
}

func TestYuNetDetect_EmptyFrame(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := detection.DefaultConfig()
	cfg.ModelPath = modelPath
	d, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Detect(empty) error = %v, want ErrEmptyFrame", err)
	}
	if _, err := d.Detect(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Detect(nil) error = %v, want ErrEmptyFrame", err)
	}
}

func TestYuNetDetect_BlankFrameHasNoFaces(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := detection.DefaultConfig()
	cfg.ModelPath = modelPath
	d, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}

	dets, err := d.Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no faces on a gray frame, got %d", len(dets))
	}
}

func TestFromRect(t *testing.T) {
	d := fromRect(image.Rect(100, 50, 180, 130))
	want := detection.Detection{X: 100, Y: 50, W: 80, H: 80, Confidence: 1}
	if d != want {
		t.Errorf("fromRect = %+v, want %+v", d, want)
	}
}

func findModelPath() string {
	candidates := []string{
		"models/face_detection_yunet.onnx",
		"../../../models/face_detection_yunet.onnx",
		filepath.Join(os.Getenv("HOME"), ".cache", "go-attend", "face_detection_yunet.onnx"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
