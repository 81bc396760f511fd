package feed

import (
	"image"
	"sync"
)

// MemoryDisplay is a headless display that records what was drawn.
// With a zero fixed size it reports the size of the last rendered frame,
// so it stays 0x0 until the feed delivers a frame.
type MemoryDisplay struct {
	mu      sync.RWMutex
	fixedW  int
	fixedH  int
	frame   image.Image
	rects   []image.Rectangle
	renders int
	clears  int
}

// NewMemoryDisplay creates a display. Pass 0, 0 to follow the frame size.
func NewMemoryDisplay(width, height int) *MemoryDisplay {
	return &MemoryDisplay{fixedW: width, fixedH: height}
}

// Render records the frame.
func (d *MemoryDisplay) Render(frame image.Image) {
	d.mu.Lock()
	d.frame = frame
	d.renders++
	d.mu.Unlock()
}

// Size returns the fixed size, or the last frame's size.
func (d *MemoryDisplay) Size() (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fixedW > 0 && d.fixedH > 0 {
		return d.fixedW, d.fixedH
	}
	if d.frame == nil {
		return 0, 0
	}
	b := d.frame.Bounds()
	return b.Dx(), b.Dy()
}

// ClearOverlay drops every rectangle.
func (d *MemoryDisplay) ClearOverlay() {
	d.mu.Lock()
	d.rects = nil
	d.clears++
	d.mu.Unlock()
}

// StrokeRect records a rectangle.
func (d *MemoryDisplay) StrokeRect(r image.Rectangle) {
	d.mu.Lock()
	d.rects = append(d.rects, r)
	d.mu.Unlock()
}

// Clear blanks the surface.
func (d *MemoryDisplay) Clear() {
	d.mu.Lock()
	d.frame = nil
	d.rects = nil
	d.mu.Unlock()
}

// Rects returns a copy of the current overlay.
func (d *MemoryDisplay) Rects() []image.Rectangle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]image.Rectangle(nil), d.rects...)
}

// Frame returns the last rendered frame, nil when blank.
func (d *MemoryDisplay) Frame() image.Image {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frame
}

// Renders returns how many frames were rendered.
func (d *MemoryDisplay) Renders() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.renders
}

// OverlayClears returns how many times the overlay was cleared.
func (d *MemoryDisplay) OverlayClears() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.clears
}

// MultiDisplay fans out to several displays. Size is taken from the first.
type MultiDisplay []Display

// Render renders on every display.
func (m MultiDisplay) Render(frame image.Image) {
	for _, d := range m {
		d.Render(frame)
	}
}

// Size returns the first display's size.
func (m MultiDisplay) Size() (int, int) {
	if len(m) == 0 {
		return 0, 0
	}
	return m[0].Size()
}

// ClearOverlay clears every overlay.
func (m MultiDisplay) ClearOverlay() {
	for _, d := range m {
		d.ClearOverlay()
	}
}

// StrokeRect draws on every display. Rectangles are in the first
// display's coordinates and rescaled for the others.
func (m MultiDisplay) StrokeRect(r image.Rectangle) {
	if len(m) == 0 {
		return
	}
	w0, h0 := m[0].Size()
	for i, d := range m {
		if i == 0 || w0 == 0 || h0 == 0 {
			d.StrokeRect(r)
			continue
		}
		w, h := d.Size()
		if w == w0 && h == h0 {
			d.StrokeRect(r)
			continue
		}
		d.StrokeRect(image.Rect(
			r.Min.X*w/w0, r.Min.Y*h/h0,
			r.Max.X*w/w0, r.Max.Y*h/h0,
		))
	}
}

// Clear blanks every display.
func (m MultiDisplay) Clear() {
	for _, d := range m {
		d.Clear()
	}
}
