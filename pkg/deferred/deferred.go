// Package deferred provides a single-settlement value: it is either resolved
// with a value or rejected with an error, exactly once.
package deferred

import (
	"context"
	"sync"
)

type Deferred[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve settles d with v. It reports false when d was already settled.
func (d *Deferred[T]) Resolve(v T) bool {
	settled := false
	d.once.Do(func() {
		d.value = v
		settled = true
		close(d.done)
	})
	return settled
}

// Reject settles d with err. It reports false when d was already settled.
func (d *Deferred[T]) Reject(err error) bool {
	settled := false
	d.once.Do(func() {
		d.err = err
		settled = true
		close(d.done)
	})
	return settled
}

// Done is closed once d is settled.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Await blocks until d is settled or ctx is done.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether d has been resolved or rejected.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
