package feed

import (
	"context"
	"image"
	"sync"
)

// FrameBuffer holds the latest frame produced by a capture goroutine.
type FrameBuffer struct {
	mu     sync.RWMutex
	frame  image.Image
	closed bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewFrameBuffer creates an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{ready: make(chan struct{})}
}

// Store replaces the latest frame.
func (b *FrameBuffer) Store(frame image.Image) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.frame = frame
	b.mu.Unlock()

	b.readyOnce.Do(func() { close(b.ready) })
}

// Load returns the latest frame.
func (b *FrameBuffer) Load() (image.Image, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.frame == nil {
		return nil, ErrNoFrame
	}
	return b.frame, nil
}

// Wait blocks until the first frame arrives or ctx is done.
func (b *FrameBuffer) Wait(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the buffer closed; later loads return ErrClosed.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.frame = nil
	b.mu.Unlock()
}
