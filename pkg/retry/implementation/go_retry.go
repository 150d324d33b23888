package implementation

import (
	"context"

	"github.com/jt828/go-autometric/pkg/retry"
	goretry "github.com/sethvargo/go-retry"
)

type goRetry struct {
	maxRetries uint64
	cfg        *retry.Config
}

func NewRetry(maxRetries uint64, opts ...retry.Option) retry.Retry {
	return &goRetry{
		maxRetries: maxRetries,
		cfg:        retry.ApplyOptions(opts...),
	}
}

func (r *goRetry) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	// Backoffs count attempts internally and cannot be shared between calls.
	backoff := goretry.WithMaxRetries(r.maxRetries, goretry.NewExponential(r.cfg.Interval))

	attempt := 0
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		attempt++

		if r.cfg.RetryableFn != nil && !r.cfg.RetryableFn(err) {
			return err
		}
		if r.cfg.OnRetry != nil && uint64(attempt) <= r.maxRetries {
			r.cfg.OnRetry(attempt, err)
		}
		return goretry.RetryableError(err)
	})
}
