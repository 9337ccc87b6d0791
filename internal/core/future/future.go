// Package future provides a single-assignment result that settles asynchronously.
//
// A *Future is the caller-held reference to a pending operation: it can be
// returned before the operation finishes and awaited later. Its pointer
// identity is what the handle registry keys on.
package future

import (
	"context"
	"sync"
)

// Settler is the part of a future that is independent of its value type.
type Settler interface {
	// Done is closed once the future is resolved or rejected.
	Done() <-chan struct{}

	// Err returns the rejection error, or nil while pending or after success.
	Err() error
}

// Future holds a value of type T that becomes available later.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// New returns a pending future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future that already failed with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Go runs fn in a new goroutine and settles the returned future with its result.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		v, err := fn(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with v. Only the first settle call has effect.
func (f *Future[T]) Resolve(v T) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Reject settles the future with err. Only the first settle call has effect.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done implements Settler.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Err implements Settler.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Settled reports whether the future has been resolved or rejected.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Forward settles dst with the outcome of src once src settles.
func Forward[T any](src, dst *Future[T]) {
	go func() {
		<-src.done
		if src.err != nil {
			dst.Reject(src.err)
			return
		}
		dst.Resolve(src.val)
	}()
}

// Wait blocks until s settles or ctx is done and returns the settle error.
func Wait(ctx context.Context, s Settler) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
