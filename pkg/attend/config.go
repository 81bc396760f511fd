// Package attend runs the capture-and-upload kiosk flow: it attaches a live
// feed to a display, optionally scans frames for faces, and uploads still
// captures to an identity-matching backend.
package attend

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects what triggers a capture.
type Mode string

const (
	// ModeDetect uploads when the detection loop sees a face.
	ModeDetect Mode = "detect"

	// ModeInterval uploads on a fixed timer without detection.
	ModeInterval Mode = "interval"

	// ModeManual uploads only on an explicit Capture call.
	ModeManual Mode = "manual"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDetect, ModeInterval, ModeManual:
		return m, nil
	default:
		return "", fmt.Errorf("attend: unknown mode %q", s)
	}
}

// Config holds flow settings.
type Config struct {
	Mode Mode

	// DetectInterval is the detection tick period (ModeDetect).
	DetectInterval time.Duration

	// UploadInterval is the capture period (ModeInterval).
	UploadInterval time.Duration

	// RenderInterval is how often frames are pushed to the display.
	RenderInterval time.Duration

	// Quality is the JPEG quality, 1-100.
	Quality int

	// Filename is the multipart filename of each upload.
	Filename string
}

// DefaultConfig returns kiosk defaults.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeDetect,
		DetectInterval: 5 * time.Second,
		UploadInterval: 5 * time.Second,
		RenderInterval: 66 * time.Millisecond,
		Quality:        90,
		Filename:       "capture.jpg",
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode == ModeDetect && c.DetectInterval <= 0 {
		return fmt.Errorf("attend: detect interval must be positive")
	}
	if c.Mode == ModeInterval && c.UploadInterval <= 0 {
		return fmt.Errorf("attend: upload interval must be positive")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("attend: quality %d out of range 1-100", c.Quality)
	}
	if c.Filename == "" {
		return fmt.Errorf("attend: filename is required")
	}
	return nil
}
