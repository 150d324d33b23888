package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jt828/go-autometric/pkg/circuitbreaker"
	cbImpl "github.com/jt828/go-autometric/pkg/circuitbreaker/implementation"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/retry"
	retryImpl "github.com/jt828/go-autometric/pkg/retry/implementation"
)

// ErrStatus is returned when the upstream answers with a non-2xx status.
// Only 5xx answers are retried.
var ErrStatus = errors.New("unexpected upstream status")

type Options struct {
	// Timeout bounds the wait for response headers. The body of a stream is
	// never cut off.
	Timeout          time.Duration
	MaxRetries       uint64
	RetryInterval    time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration

	Transport http.RoundTripper
	Logger    observability.Logger
	Tracer    observability.Tracer
}

// Client opens long-lived upstream streams behind a retry policy and a
// circuit breaker.
type Client struct {
	http    *http.Client
	breaker circuitbreaker.CircuitBreaker[*http.Response]
	retry   retry.Retry
	log     observability.Logger
	tracer  observability.Tracer
}

func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = opts.Timeout
		transport = t
	}

	c := &Client{
		http:   &http.Client{Transport: transport},
		log:    opts.Logger,
		tracer: opts.Tracer,
	}

	c.breaker = cbImpl.NewCircuitBreaker[*http.Response](circuitbreaker.Settings{
		Name:             "upstream",
		FailureThreshold: opts.FailureThreshold,
		OpenTimeout:      opts.OpenTimeout,
		// A client error is the upstream working as intended.
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			c.log.Warn("circuit breaker state changed",
				observability.String("breaker", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	retryOpts := []retry.Option{
		retry.WithRetryable(isRetryable),
		retry.WithOnRetry(func(attempt int, err error) {
			c.log.Debug("upstream attempt failed", observability.Int("attempt", attempt), observability.Err(err))
		}),
	}
	if opts.RetryInterval > 0 {
		retryOpts = append(retryOpts, retry.WithInterval(opts.RetryInterval))
	}
	c.retry = retryImpl.NewRetry(opts.MaxRetries, retryOpts...)

	return c
}

// Open requests url and returns the response once headers arrived with a 2xx
// status. The caller owns the body.
func (c *Client) Open(ctx context.Context, url string) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.open")
	defer span.End()

	var resp *http.Response
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		r, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.get(ctx, url)
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) State() circuitbreaker.State {
	return c.breaker.State()
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &statusError{url: url, code: resp.StatusCode}
	}
	return resp, nil
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s answered %d", ErrStatus, e.url, e.code)
}

func (e *statusError) Unwrap() error { return ErrStatus }

func isRetryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return true
}
