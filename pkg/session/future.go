package session

import (
	"sync"
	"time"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// Future is the handle of an asynchronous write.
type Future interface {
	// Done is closed when the write completed
	Done() <-chan struct{}
	// Err returns the outcome; it is only meaningful once Done is closed
	Err() error
	// Wait blocks until completion or timeout, whichever comes first.
	// A non-positive timeout waits without limit.
	Wait(timeout time.Duration) error
	// OnComplete registers fn to run once with the outcome. If the write
	// already completed, fn runs immediately on the calling goroutine.
	OnComplete(fn func(error))
}

// Result is the Future implementation used by sessions. The first call to
// Complete wins.
type Result struct {
	done      chan struct{}
	mu        sync.Mutex
	completed bool
	err       error
	callbacks []func(error)
}

// NewResult returns an incomplete Result.
func NewResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Completed returns a Result already completed with err.
func Completed(err error) *Result {
	r := NewResult()
	r.Complete(err)
	return r
}

// Complete records the outcome and runs the registered callbacks.
func (r *Result) Complete(err error) {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return
	}
	r.completed = true
	r.err = err
	callbacks := r.callbacks
	r.callbacks = nil
	close(r.done)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
}

// Done implements Future.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err implements Future.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait implements Future.
func (r *Result) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-r.done
		return r.Err()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return r.Err()
	case <-timer.C:
		return errors.Newf(errors.ErrorTypeTimeout, "write did not complete within %s", timeout)
	}
}

// OnComplete implements Future.
func (r *Result) OnComplete(fn func(error)) {
	r.mu.Lock()
	if !r.completed {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	err := r.err
	r.mu.Unlock()
	fn(err)
}
