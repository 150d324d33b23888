package apperror

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConfiguration marks setup-time mistakes such as a duplicate metric
	// name or an invalid instrument spec. It is not recoverable at runtime.
	ErrConfiguration = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream failure")
	// ErrUnavailable is returned while a dependency is shielded by an open
	// circuit breaker.
	ErrUnavailable = errors.New("temporarily unavailable")
)
