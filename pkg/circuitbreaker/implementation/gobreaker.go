package implementation

import (
	"errors"
	"fmt"

	"github.com/jt828/go-autometric/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

type gobreakerCircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

func NewCircuitBreaker[T any](settings circuitbreaker.Settings) circuitbreaker.CircuitBreaker[T] {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	gs := gobreaker.Settings{
		Name:    settings.Name,
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: settings.IsSuccessful,
	}
	if settings.OnStateChange != nil {
		gs.OnStateChange = func(name string, from, to gobreaker.State) {
			settings.OnStateChange(name, fromGobreaker(from), fromGobreaker(to))
		}
	}

	return &gobreakerCircuitBreaker[T]{
		cb: gobreaker.NewCircuitBreaker[T](gs),
	}
}

func (g *gobreakerCircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	v, err := g.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, fmt.Errorf("%w: %w", circuitbreaker.ErrOpen, err)
	}
	return v, err
}

func (g *gobreakerCircuitBreaker[T]) State() circuitbreaker.State {
	return fromGobreaker(g.cb.State())
}

func fromGobreaker(s gobreaker.State) circuitbreaker.State {
	switch s {
	case gobreaker.StateHalfOpen:
		return circuitbreaker.HalfOpen
	case gobreaker.StateOpen:
		return circuitbreaker.Open
	default:
		return circuitbreaker.Closed
	}
}
