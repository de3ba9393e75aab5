package terminal

import (
	"context"
	"sync"
)

// Dispatcher runs functions on the UI goroutine in submission order.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc adapts a plain function, e.g. one that runs fn inline.
type DispatchFunc func(fn func())

func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Loop is a single-goroutine FIFO executor standing in for the UI thread.
// Dispatch never blocks, so it is safe to call from the loop itself.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Sync dispatches fn and waits for it to finish. It must not be called from
// the loop goroutine.
func (l *Loop) Sync(fn func()) {
	done := make(chan struct{})
	l.Dispatch(func() {
		defer close(done)
		fn()
	})
	<-done
}

// Run executes dispatched functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
	}
}
