package server

import (
	"context"
	"fmt"
)

// request represents a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func() (any, error)
	done chan result
}

// result holds the return value from a unit of work.
type result struct {
	value any
	err   error
}

// Worker serializes evaluation through a single goroutine so that runs
// never interleave and a panicking run cannot take the server down.
type Worker struct {
	requests chan request
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func() (any, error)) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := fn()
	return result{value: v, err: err}
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes or ctx is done. A run that has started always finishes; only
// the wait is abandoned.
func (w *Worker) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	select {
	case <-w.quit:
		return nil, errWorkerStopped
	default:
	}
	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errWorkerStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		// The request may have been queued but never picked up.
		select {
		case res := <-req.done:
			return res.value, res.err
		default:
			return nil, errWorkerStopped
		}
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
