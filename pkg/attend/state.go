package attend

import (
	"image"
	"time"
)

// Box is an overlay rectangle in display coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BoxFromRect converts an image rectangle.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect converts the box back to an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// State is an observable snapshot of the flow.
type State struct {
	Mode          Mode      `json:"mode"`
	FeedLive      bool      `json:"feed_live"`
	FacePresent   bool      `json:"face_present"`
	InFlight      bool      `json:"in_flight"`
	Message       string    `json:"message"`
	Boxes         []Box     `json:"boxes"`
	LastCaptureID string    `json:"last_capture_id,omitempty"`
	LastCapture   time.Time `json:"last_capture,omitempty"`
}

// Observer receives state changes and reported failures.
// Calls may come from several goroutines.
type Observer interface {
	OnState(s State)
	OnError(err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

// OnState does nothing.
func (NopObserver) OnState(State) {}

// OnError does nothing.
func (NopObserver) OnError(error) {}

// Observers fans out to several observers.
type Observers []Observer

// OnState notifies every observer.
func (o Observers) OnState(s State) {
	for _, obs := range o {
		obs.OnState(s)
	}
}

// OnError notifies every observer.
func (o Observers) OnError(err error) {
	for _, obs := range o {
		obs.OnError(err)
	}
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State func(State)
	Error func(error)
}

// OnState calls State.
func (f ObserverFuncs) OnState(s State) {
	if f.State != nil {
		f.State(s)
	}
}

// OnError calls Error.
func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}
