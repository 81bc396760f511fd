package attend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/pkg/upload"
)

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (r *recorder) OnState(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// blockingSender holds every Send until release is closed.
type blockingSender struct {
	*upload.Mock
	entered chan struct{}
	release chan struct{}
}

func newBlockingSender(match bool) *blockingSender {
	b := &blockingSender{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	b.Mock = &upload.Mock{
		SendFunc: func(ctx context.Context, req upload.Request) (*upload.Response, error) {
			b.entered <- struct{}{}
			select {
			case <-b.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &upload.Response{Match: upload.Bool(match)}, nil
		},
	}
	return b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
