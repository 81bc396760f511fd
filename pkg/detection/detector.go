// Package detection defines the face detector contract used by the
// detection loop and the geometry helpers for drawing its results.
package detection

import (
	"image"
	"math"
)

// Detection represents a detected face in source-frame pixel coordinates.
type Detection struct {
	X, Y       float64 // Top-left corner
	W, H       float64 // Width and height
	Confidence float64 // Detection confidence (0-1), 0 if the backend has none
}

// Area returns the box area in square pixels.
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Rect rounds the detection to an integer rectangle.
func (d Detection) Rect() image.Rectangle {
	x0 := int(math.Round(d.X))
	y0 := int(math.Round(d.Y))
	return image.Rect(x0, y0, x0+int(math.Round(d.W)), y0+int(math.Round(d.H)))
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in the frame. Coordinates are relative to the
	// frame's bounds origin.
	Detect(frame image.Image) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model or cascade XML
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Scale maps d from a frameW x frameH source to a displayW x displayH
// surface. Zero frame dimensions yield a zero detection.
func Scale(d Detection, frameW, frameH, displayW, displayH int) Detection {
	if frameW <= 0 || frameH <= 0 {
		return Detection{}
	}
	sx := float64(displayW) / float64(frameW)
	sy := float64(displayH) / float64(frameH)
	return Detection{
		X:          d.X * sx,
		Y:          d.Y * sy,
		W:          d.W * sx,
		H:          d.H * sy,
		Confidence: d.Confidence,
	}
}

// ScaleAll applies Scale to every detection.
func ScaleAll(dets []Detection, frameW, frameH, displayW, displayH int) []Detection {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		out[i] = Scale(d, frameW, frameH, displayW, displayH)
	}
	return out
}

// Primary returns the face of the person standing closest to the kiosk:
// the largest box, with confidence breaking ties. ok is false for no faces.
func Primary(dets []Detection) (best Detection, ok bool) {
	for i, d := range dets {
		if i == 0 || d.Area() > best.Area() ||
			(d.Area() == best.Area() && d.Confidence > best.Confidence) {
			best = d
		}
	}
	return best, len(dets) > 0
}
