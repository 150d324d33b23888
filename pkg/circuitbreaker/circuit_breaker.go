package circuitbreaker

import (
	"errors"
	"time"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// ErrOpen is returned without calling the protected function while the
// breaker is open or saturated in half-open state.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name string
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// IsSuccessful decides whether an error counts as a failure. Nil counts
	// every error.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker[T any] interface {
	Execute(fn func() (T, error)) (T, error)
	State() State
}
