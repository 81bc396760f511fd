package upload

import (
	"context"
	"sync"
)

// Mock implements Sender for testing.
type Mock struct {
	// SendFunc is called when Send is invoked.
	// If nil, Send reports a match.
	SendFunc func(ctx context.Context, req Request) (*Response, error)

	mu       sync.Mutex
	requests []Request
}

// NewMock creates a mock that answers every upload with match.
func NewMock(match bool) *Mock {
	return &Mock{
		SendFunc: func(ctx context.Context, req Request) (*Response, error) {
			return &Response{Match: Bool(match), CaptureID: req.ID}, nil
		},
	}
}

// Send records the request and calls SendFunc.
func (m *Mock) Send(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.SendFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &Response{Match: Bool(true), CaptureID: req.ID}, nil
}

// Requests returns a copy of the recorded requests.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Count returns how many uploads were sent.
func (m *Mock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
