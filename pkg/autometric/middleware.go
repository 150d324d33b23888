package autometric

import (
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/felixge/httpsnoop"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type ClosedBy string

const (
	// ClosedByServer marks an exchange whose handler returned.
	ClosedByServer ClosedBy = "server"
	// ClosedByClient marks an exchange whose request context was cancelled
	// while the handler was still running.
	ClosedByClient ClosedBy = "client"
)

// Exchange is what the middleware knows about a finished request.
type Exchange struct {
	Request      *http.Request
	StatusCode   int
	BytesRead    int64
	BytesWritten int64
	ClosedBy     ClosedBy
}

type MiddlewareOptions struct {
	CreateOptions

	AddMethodLabel     bool
	AddStatusCodeLabel bool
	AddClosedByLabel   bool

	// RewriteLabels runs once per exchange at finalization.
	RewriteLabels func(current Labels, opts MiddlewareOptions, exchange Exchange) Labels
}

var middlewareSpecs = []InstrumentSpec{
	{Key: "calls", Suffix: "calls_total", Kind: KindCounter,
		Help: `Autometric Counter for requests on the "%s" Route`},
	{Key: "durations", Suffix: "durations_ms", Kind: KindDistribution,
		Help: `Autometric Summary for the durations on the "%s" Route`},
	{Key: "fails", Suffix: "fails_total", Kind: KindCounter,
		Help: `Autometric Counter for unsuccessfully respond requests of the "%s" Route`},
	{Key: "incoming", Suffix: "incoming_bytes", Kind: KindDistribution,
		Help: `Autometric Summary for the incoming throughput in bytes of the "%s" Route`},
	{Key: "outgoing", Suffix: "outgoing_bytes", Kind: KindDistribution,
		Help: `Autometric Summary for the outgoing throughput in bytes of the "%s" Route`},
	{Key: "successes", Suffix: "successes_total", Kind: KindCounter,
		Help: `Autometric Counter for successfully respond requests of the "%s" Route`},
}

type MiddlewareInstrumentation struct {
	set   *MetricSet
	opts  MiddlewareOptions
	clock clock.Clock
	log   observability.Logger

	calls     observability.Counter
	fails     observability.Counter
	successes observability.Counter
	durations observability.Distribution
	incoming  observability.Distribution
	outgoing  observability.Distribution
}

func CreateMiddlewareInstrumentation(name string, opts MiddlewareOptions) (*MiddlewareInstrumentation, error) {
	opts.CreateOptions = opts.CreateOptions.withDefaults()

	set, err := NewMetricSet(name, withHelp(middlewareSpecs, name), opts.CreateOptions)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("middleware instrumentation created", observability.String("prefix", name))

	return &MiddlewareInstrumentation{
		set:       set,
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger.With(observability.String("prefix", name)),
		calls:     set.Counter("calls"),
		fails:     set.Counter("fails"),
		successes: set.Counter("successes"),
		durations: set.Distribution("durations"),
		incoming:  set.Distribution("incoming"),
		outgoing:  set.Distribution("outgoing"),
	}, nil
}

func (m *MiddlewareInstrumentation) Registry() *prometheus.Registry { return m.set.Registry() }
func (m *MiddlewareInstrumentation) Prefix() string                 { return m.set.Name() }
func (m *MiddlewareInstrumentation) Labels() Labels                 { return m.opts.Labels.Clone() }

// Middleware returns a handler wrapper that tracks every request passing
// through it. call.Labels are merged over the static labels.
func (m *MiddlewareInstrumentation) Middleware(call CallOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.serve(next, w, r, call)
		})
	}
}

func (m *MiddlewareInstrumentation) serve(next http.Handler, w http.ResponseWriter, r *http.Request, call CallOptions) {
	start := m.clock.Now()
	labels := ComposeLabels(m.opts.Labels, call.Labels)
	if m.opts.AddMethodLabel && r.Method != "" {
		labels["method"] = r.Method
	}
	m.calls.IncAt(start, 1, labels.toObservability()...)

	rec := &exchangeRecorder{}
	if r.Body != nil {
		// The caller's request keeps its own body.
		shallow := *r
		shallow.Body = &countingBody{ReadCloser: r.Body, n: &rec.read}
		r = &shallow
	}

	guard := Arm(func(by ClosedBy) {
		m.finalize(start, labels, r, rec, by)
	})

	done := make(chan struct{})
	go func() {
		select {
		case <-r.Context().Done():
			guard.Signal(ClosedByClient)
		case <-done:
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			rec.status.CompareAndSwap(0, http.StatusInternalServerError)
			close(done)
			guard.Signal(ClosedByServer)
			panic(p)
		}
	}()

	next.ServeHTTP(rec.wrap(w), r)

	close(done)
	if !guard.Signal(ClosedByServer) {
		m.log.Debug("exchange already finalized", observability.String("closedBy", string(ClosedByClient)))
	}
}

func (m *MiddlewareInstrumentation) finalize(start time.Time, labels Labels, r *http.Request, rec *exchangeRecorder, by ClosedBy) {
	end := m.clock.Now()
	status := rec.statusCode()

	if m.opts.AddClosedByLabel {
		labels["closedBy"] = string(by)
	}
	if m.opts.AddStatusCodeLabel {
		labels["statusCode"] = strconv.Itoa(status)
	}

	exchange := Exchange{
		Request:      r,
		StatusCode:   status,
		BytesRead:    rec.read.Load(),
		BytesWritten: rec.written.Load(),
		ClosedBy:     by,
	}
	if m.opts.RewriteLabels != nil {
		labels = applyRewrite(labels, func(current Labels) Labels {
			return m.opts.RewriteLabels(current, m.opts, exchange)
		})
	}

	ls := labels.toObservability()
	m.durations.Observe(milliseconds(end.Sub(start)), ls...)
	if status >= http.StatusBadRequest {
		m.fails.IncAt(end, 1, ls...)
	} else {
		m.successes.IncAt(end, 1, ls...)
	}
	m.incoming.Observe(float64(exchange.BytesRead), ls...)
	m.outgoing.Observe(float64(exchange.BytesWritten), ls...)
}

// exchangeRecorder is written by the handler goroutine and read by whichever
// goroutine finalizes, hence the atomics.
type exchangeRecorder struct {
	status  atomic.Int64
	read    atomic.Int64
	written atomic.Int64
}

func (e *exchangeRecorder) statusCode() int {
	if s := e.status.Load(); s != 0 {
		return int(s)
	}
	return http.StatusOK
}

func (e *exchangeRecorder) wrap(w http.ResponseWriter) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				// 1xx responses are not final.
				if code >= http.StatusOK {
					e.status.CompareAndSwap(0, int64(code))
				}
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				e.status.CompareAndSwap(0, http.StatusOK)
				n, err := next(b)
				e.written.Add(int64(n))
				return n, err
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				e.status.CompareAndSwap(0, http.StatusOK)
				n, err := next(src)
				e.written.Add(n)
				return n, err
			}
		},
	})
}

type countingBody struct {
	io.ReadCloser
	n *atomic.Int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n.Add(int64(n))
	return n, err
}
