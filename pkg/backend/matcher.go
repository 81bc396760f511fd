package backend

import (
	"context"
	"image"

	"github.com/teslashibe/go-attend/pkg/detection"
)

// Verdict is the outcome of matching one capture.
type Verdict struct {
	Matched bool
	UserID  string
	Name    string
}

// Matcher decides whether a captured image belongs to a known user.
type Matcher interface {
	Match(ctx context.Context, img image.Image) (Verdict, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, img image.Image) (Verdict, error)

// Match calls f.
func (f MatcherFunc) Match(ctx context.Context, img image.Image) (Verdict, error) {
	return f(ctx, img)
}

// StaticMatcher returns the same verdict for every capture.
type StaticMatcher struct {
	Verdict Verdict
}

// Match returns the fixed verdict.
func (m StaticMatcher) Match(context.Context, image.Image) (Verdict, error) {
	return m.Verdict, nil
}

// DetectorMatcher matches any capture whose primary face is large enough.
// It stands in for a real identity service during kiosk bring-up.
type DetectorMatcher struct {
	Detector detection.Detector

	// MinArea rejects faces smaller than this many square pixels, which
	// are people passing by rather than standing at the kiosk. Zero
	// accepts any face.
	MinArea float64

	// User is reported for matched captures.
	UserID string
	Name   string
}

// Match runs the detector and matches on the primary face.
func (m DetectorMatcher) Match(ctx context.Context, img image.Image) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	dets, err := m.Detector.Detect(img)
	if err != nil {
		return Verdict{}, err
	}
	face, ok := detection.Primary(dets)
	if !ok || face.Area() < m.MinArea {
		return Verdict{}, nil
	}
	return Verdict{Matched: true, UserID: m.UserID, Name: m.Name}, nil
}
