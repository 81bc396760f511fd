package device

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/teslashibe/go-attend/pkg/feed"
)

func TestDeviceArg(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"0", 0},
		{"2", 2},
		{"/dev/video0", "/dev/video0"},
		{"rtsp://cam.local/stream", "rtsp://cam.local/stream"},
	}
	for _, tc := range tests {
		if got := deviceArg(tc.in); got != tc.want {
			t.Errorf("deviceArg(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"VIDEOIO: Permission denied", feed.ErrPermissionDenied},
		{"camera access not authorized", feed.ErrPermissionDenied},
		{"Error opening device: 7", feed.ErrDeviceUnavailable},
	}
	for _, tc := range tests {
		if err := classifyOpenError("0", errors.New(tc.msg)); !errors.Is(err, tc.want) {
			t.Errorf("classifyOpenError(%q) = %v, want %v", tc.msg, err, tc.want)
		}
	}
}

func TestAcquire_MissingDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "/nonexistent/video99"

	_, err := NewAcquirer(cfg).Acquire(context.Background())
	if !errors.Is(err, feed.ErrDeviceUnavailable) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestAcquire_RealCamera(t *testing.T) {
	dev := os.Getenv("CAMERA_DEVICE_TEST")
	if dev == "" {
		t.Skip("CAMERA_DEVICE_TEST not set, skipping camera test")
	}

	cfg := DefaultConfig()
	cfg.Device = dev
	f, err := NewAcquirer(cfg).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer f.Close()

	img, err := f.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if img.Bounds().Empty() {
		t.Error("frame is empty")
	}
}
