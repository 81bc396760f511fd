package detection

import (
	"image"
	"sync"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, Detect returns Detections.
	DetectFunc func(frame image.Image) ([]Detection, error)

	// Detections is the fixed result used when DetectFunc is nil.
	Detections []Detection

	mu     sync.Mutex
	calls  int
	closed bool
}

// NewMock creates a mock that always returns dets.
func NewMock(dets ...Detection) *Mock {
	return &Mock{Detections: dets}
}

// Detect calls DetectFunc or returns the fixed detections.
func (m *Mock) Detect(frame image.Image) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFunc
	dets := append([]Detection(nil), m.Detections...)
	m.mu.Unlock()

	if fn != nil {
		return fn(frame)
	}
	return dets, nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
