package cv

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-attend/pkg/detection"
)

// HaarDetector uses a Haar cascade classifier. It is less accurate than
// YuNet but needs only the cascade XML shipped with OpenCV.
type HaarDetector struct {
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
}

// NewHaar loads the cascade at cfg.ModelPath.
func NewHaar(cfg detection.Config) (*HaarDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.ModelPath) {
		classifier.Close()
		return nil, fmt.Errorf("error reading cascade file: %s", cfg.ModelPath)
	}
	return &HaarDetector{classifier: classifier}, nil
}

// Detect finds faces in the frame. Cascade hits carry no score, so
// Confidence is always 1.
func (d *HaarDetector) Detect(frame image.Image) ([]detection.Detection, error) {
	img, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	rects := d.classifier.DetectMultiScale(img)
	d.mu.Unlock()

	dets := make([]detection.Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, fromRect(r))
	}
	return dets, nil
}

// Close releases the classifier.
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

func fromRect(r image.Rectangle) detection.Detection {
	return detection.Detection{
		X:          float64(r.Min.X),
		Y:          float64(r.Min.Y),
		W:          float64(r.Dx()),
		H:          float64(r.Dy()),
		Confidence: 1,
	}
}
