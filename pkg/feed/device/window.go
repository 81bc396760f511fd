package device

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

var overlayColor = color.RGBA{G: 255, A: 255}

// Window shows frames in an OpenCV window with the face overlay on top.
type Window struct {
	win *gocv.Window

	mu     sync.Mutex
	width  int
	height int
	rects  []image.Rectangle
}

// NewWindow opens a window titled title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Render draws frame and the current overlay.
func (w *Window) Render(frame image.Image) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return
	}
	defer mat.Close()

	w.mu.Lock()
	w.width, w.height = mat.Cols(), mat.Rows()
	rects := append([]image.Rectangle(nil), w.rects...)
	w.mu.Unlock()

	for _, r := range rects {
		gocv.Rectangle(&mat, r, overlayColor, 2)
	}
	w.win.IMShow(mat)
	w.win.WaitKey(1)
}

// Size returns the size of the last shown frame.
func (w *Window) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// ClearOverlay removes every rectangle.
func (w *Window) ClearOverlay() {
	w.mu.Lock()
	w.rects = nil
	w.mu.Unlock()
}

// StrokeRect adds a rectangle.
func (w *Window) StrokeRect(r image.Rectangle) {
	w.mu.Lock()
	w.rects = append(w.rects, r)
	w.mu.Unlock()
}

// Clear blanks the window.
func (w *Window) Clear() {
	w.mu.Lock()
	w.width, w.height = 0, 0
	w.rects = nil
	w.mu.Unlock()

	blank := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	defer blank.Close()
	w.win.IMShow(blank)
	w.win.WaitKey(1)
}

// Close closes the window.
func (w *Window) Close() error {
	return w.win.Close()
}
