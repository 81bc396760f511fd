// Package cv provides OpenCV-backed face detectors.
package cv

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/detection"
)

// ErrEmptyFrame is returned for frames with no pixels.
var ErrEmptyFrame = errors.New("cv: empty frame")

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   detection.Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg detection.Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is reset per frame in Detect
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in the frame
func (d *YuNetDetector) Detect(frame image.Image) ([]detection.Detection, error) {
	img, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	var dets []detection.Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet rows: 0-3 box in pixels, 4-13 landmarks, 14 score
		dets = append(dets, detection.Detection{
			X:          float64(faces.GetFloatAt(r, 0)),
			Y:          float64(faces.GetFloatAt(r, 1)),
			W:          float64(faces.GetFloatAt(r, 2)),
			H:          float64(faces.GetFloatAt(r, 3)),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	if len(dets) > 0 {
		log.Debug("yunet detections", "faces", len(dets))
	}

	return dets, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

func toMat(frame image.Image) (gocv.Mat, error) {
	if frame == nil || frame.Bounds().Empty() {
		return gocv.Mat{}, ErrEmptyFrame
	}
	img, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, ErrEmptyFrame
	}
	return img, nil
}
