package algorithm

import (
	"context"
	"sync"
)

// Result is the eventual outcome of an asynchronous run. It resolves once.
// A run that failed, was cancelled or panicked resolves to false; Err
// reports why.
type Result struct {
	done chan struct{}
	once sync.Once
	ok   bool
	err  error
}

// NewResult returns an unresolved Result.
func NewResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Resolved returns a Result that is already resolved.
func Resolved(ok bool, err error) *Result {
	r := NewResult()
	r.Resolve(ok, err)
	return r
}

// Resolve settles the Result. Later calls are ignored. A non-nil err
// always forces the outcome to false.
func (r *Result) Resolve(ok bool, err error) {
	r.once.Do(func() {
		r.ok = ok && err == nil
		r.err = err
		close(r.done)
	})
}

// Done is closed once the Result resolves.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the Result resolves and returns the executed flag.
func (r *Result) Wait() bool {
	<-r.done
	return r.ok
}

// WaitContext is Wait bounded by ctx.
func (r *Result) WaitContext(ctx context.Context) (bool, error) {
	select {
	case <-r.done:
		return r.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Err returns the failure cause, or nil while unresolved or on success.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
