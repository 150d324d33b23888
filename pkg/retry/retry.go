package retry

import (
	"context"
	"time"
)

type Retry interface {
	// Execute runs fn until it succeeds, returns a non-retryable error, the
	// attempts are exhausted or ctx is done.
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	RetryableFn func(err error) bool
	Interval    time.Duration
	// OnRetry is called before every retry with the failed attempt number,
	// starting at 1.
	OnRetry func(attempt int, err error)
}

type Option func(*Config)

func WithRetryable(fn func(err error) bool) Option {
	return func(c *Config) {
		c.RetryableFn = fn
	}
}

func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

func ApplyOptions(opts ...Option) *Config {
	c := &Config{Interval: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
