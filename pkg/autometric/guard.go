package autometric

import "sync/atomic"

// CompletionGuard is a one-shot latch. Host primitives may report completion
// through more than one event; only the first one finalizes.
type CompletionGuard[K any] struct {
	closed   atomic.Bool
	finalize func(K)
}

func Arm[K any](finalize func(K)) *CompletionGuard[K] {
	return &CompletionGuard[K]{finalize: finalize}
}

// Signal runs the finalizer with k if the guard is still open and reports
// whether it did. Every later call is a no-op.
func (g *CompletionGuard[K]) Signal(k K) bool {
	if !g.closed.CompareAndSwap(false, true) {
		return false
	}
	if g.finalize != nil {
		g.finalize(k)
	}
	return true
}

func (g *CompletionGuard[K]) Closed() bool {
	return g.closed.Load()
}
