package autometric

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jt828/go-autometric/pkg/deferred"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNilRejection replaces a nil reason passed to reject, so a rejected
// promise never awaits as a success.
var ErrNilRejection = errors.New("promise rejected without a reason")

type SettlementStatus string

const (
	StatusResolve SettlementStatus = "resolve"
	StatusReject  SettlementStatus = "reject"
)

// Settlement is the outcome handed to a promise's label rewrite: the
// resolved value or the rejection reason.
type Settlement struct {
	Status SettlementStatus
	Value  any
	Err    error
}

type PromiseOptions struct {
	CreateOptions

	// Runner launches each executor. Nil calls the executor synchronously
	// from NewPromise.
	Runner func(task func())
}

type PromiseCallOptions struct {
	Labels        Labels
	NoStatusLabel bool
	RewriteLabels func(current Labels, outcome Settlement, create PromiseOptions, call PromiseCallOptions) Labels
}

var promiseSpecs = []InstrumentSpec{
	{Key: "calls", Suffix: "calls_total", Kind: KindCounter,
		Help: `Autometric Counter for calls of the "%s" Promise`},
	{Key: "durations", Suffix: "durations_ms", Kind: KindDistribution,
		Help: `Autometric Summary for the durations of the "%s" Promise`},
	{Key: "resolves", Suffix: "resolves_total", Kind: KindCounter,
		Help: `Autometric Counter for resolved calls of the "%s" Promise`},
	{Key: "rejects", Suffix: "rejects_total", Kind: KindCounter,
		Help: `Autometric Counter for rejected calls of the "%s" Promise`},
}

type PromiseInstrumentation struct {
	set   *MetricSet
	opts  PromiseOptions
	clock clock.Clock

	calls     observability.Counter
	resolves  observability.Counter
	rejects   observability.Counter
	durations observability.Distribution
}

func CreatePromiseInstrumentation(name string, opts PromiseOptions) (*PromiseInstrumentation, error) {
	opts.CreateOptions = opts.CreateOptions.withDefaults()

	set, err := NewMetricSet(name, withHelp(promiseSpecs, name), opts.CreateOptions)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("promise instrumentation created", observability.String("prefix", name))

	return &PromiseInstrumentation{
		set:       set,
		opts:      opts,
		clock:     opts.Clock,
		calls:     set.Counter("calls"),
		resolves:  set.Counter("resolves"),
		rejects:   set.Counter("rejects"),
		durations: set.Distribution("durations"),
	}, nil
}

func (p *PromiseInstrumentation) Registry() *prometheus.Registry { return p.set.Registry() }
func (p *PromiseInstrumentation) Prefix() string                 { return p.set.Name() }
func (p *PromiseInstrumentation) Labels() Labels                 { return p.opts.Labels.Clone() }

func (p *PromiseInstrumentation) run(task func()) {
	if p.opts.Runner != nil {
		p.opts.Runner(task)
		return
	}
	task()
}

func (p *PromiseInstrumentation) settle(start time.Time, labels Labels, outcome Settlement, call PromiseCallOptions) {
	end := p.clock.Now()

	if !call.NoStatusLabel {
		labels["status"] = string(outcome.Status)
	}
	if call.RewriteLabels != nil {
		labels = applyRewrite(labels, func(current Labels) Labels {
			return call.RewriteLabels(current, outcome, p.opts, call)
		})
	}

	ls := labels.toObservability()
	p.durations.Observe(milliseconds(end.Sub(start)), ls...)
	if outcome.Status == StatusResolve {
		p.resolves.IncAt(end, 1, ls...)
	} else {
		p.rejects.IncAt(end, 1, ls...)
	}
}

// Promise is a tracked deferred value. Values and errors reach the caller
// exactly as the executor produced them.
type Promise[T any] struct {
	inner *deferred.Deferred[T]
}

// NewPromise counts a call, then launches executor. The first of resolve or
// reject settles the promise and records its duration; later calls are
// ignored.
func NewPromise[T any](
	inst *PromiseInstrumentation,
	executor func(resolve func(T), reject func(error)),
	call PromiseCallOptions,
) *Promise[T] {
	start := inst.clock.Now()
	labels := ComposeLabels(inst.opts.Labels, call.Labels)
	inst.calls.IncAt(start, 1, labels.toObservability()...)

	inner := deferred.New[T]()
	guard := Arm(func(outcome Settlement) {
		inst.settle(start, labels, outcome, call)
	})

	resolve := func(v T) {
		if guard.Signal(Settlement{Status: StatusResolve, Value: v}) {
			inner.Resolve(v)
		}
	}
	reject := func(err error) {
		if err == nil {
			err = ErrNilRejection
		}
		if guard.Signal(Settlement{Status: StatusReject, Err: err}) {
			inner.Reject(err)
		}
	}

	inst.run(func() { executor(resolve, reject) })

	return &Promise[T]{inner: inner}
}

// Go runs fn on its own goroutine and settles the promise with its result.
func Go[T any](inst *PromiseInstrumentation, fn func() (T, error), call PromiseCallOptions) *Promise[T] {
	return NewPromise(inst, func(resolve func(T), reject func(error)) {
		go func() {
			v, err := fn()
			if err != nil {
				reject(err)
				return
			}
			resolve(v)
		}()
	}, call)
}

// Await blocks until the promise settles or ctx is done.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	return p.inner.Await(ctx)
}

func (p *Promise[T]) Done() <-chan struct{} {
	return p.inner.Done()
}

func (p *Promise[T]) Settled() bool {
	return p.inner.Settled()
}
