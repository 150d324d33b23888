package autometric

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type StreamCallOptions struct {
	Labels Labels
	// RewriteLabels runs for every chunk before it is measured.
	RewriteLabels func(current Labels, chunk any, create CreateOptions, call StreamCallOptions) Labels
}

var streamSpecs = []InstrumentSpec{
	{Key: "chunkSizes", Suffix: "chunk_sizes_bytes", Kind: KindDistribution,
		Help: `Autometric Summary for the chunk-size of the "%s" Stream`},
	{Key: "durations", Suffix: "durations_ms", Kind: KindDistribution,
		Help: `Autometric Summary for the durations of the "%s" Stream`},
	{Key: "elapsedTime", Suffix: "elapsed_time_ms", Kind: KindDistribution,
		Help: `Autometric Summary for the elapsed time between emitted chunks of the "%s" Stream`},
	{Key: "ends", Suffix: "ends_total", Kind: KindCounter,
		Help: `Autometric Counter for ended Streams of "%s"`},
	{Key: "nonEmits", Suffix: "non_emits_total", Kind: KindCounter,
		Help: `Autometric Counter for Streams of "%s" without emitting data`},
	{Key: "throughput", Suffix: "throughput_bytes", Kind: KindDistribution,
		Help: `Autometric Summary for the throughput in bytes of the "%s" Stream`},
}

type StreamInstrumentation struct {
	set   *MetricSet
	opts  CreateOptions
	clock clock.Clock

	chunkSizes  observability.Distribution
	durations   observability.Distribution
	elapsedTime observability.Distribution
	throughput  observability.Distribution
	ends        observability.Counter
	nonEmits    observability.Counter
}

func CreateStreamInstrumentation(name string, opts CreateOptions) (*StreamInstrumentation, error) {
	opts = opts.withDefaults()

	set, err := NewMetricSet(name, withHelp(streamSpecs, name), opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("stream instrumentation created", observability.String("prefix", name))

	return &StreamInstrumentation{
		set:         set,
		opts:        opts,
		clock:       opts.Clock,
		chunkSizes:  set.Distribution("chunkSizes"),
		durations:   set.Distribution("durations"),
		elapsedTime: set.Distribution("elapsedTime"),
		throughput:  set.Distribution("throughput"),
		ends:        set.Counter("ends"),
		nonEmits:    set.Counter("nonEmits"),
	}, nil
}

func (s *StreamInstrumentation) Registry() *prometheus.Registry { return s.set.Registry() }
func (s *StreamInstrumentation) Prefix() string                 { return s.set.Name() }
func (s *StreamInstrumentation) Labels() Labels                 { return s.opts.Labels.Clone() }

// NewPipe starts tracking one stream.
func (s *StreamInstrumentation) NewPipe(call StreamCallOptions) *Pipe {
	p := &Pipe{
		inst:   s,
		call:   call,
		labels: ComposeLabels(s.opts.Labels, call.Labels),
		// Until a chunk arrives, durations are measured from construction.
		first: s.clock.Now(),
	}
	p.end = Arm(func(struct{}) { p.finalize() })
	return p
}

// Pipe accumulates per-chunk statistics of one stream and records them when
// the stream ends.
type Pipe struct {
	inst *StreamInstrumentation
	call StreamCallOptions
	end  *CompletionGuard[struct{}]

	mu         sync.Mutex
	labels     Labels
	firstSeen  bool
	first      time.Time
	previous   time.Time
	chunks     int
	throughput float64
}

// Transform measures chunk and returns it unchanged. Chunks arriving after
// End pass through unmeasured.
func (p *Pipe) Transform(chunk any) any {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.end.Closed() {
		return chunk
	}

	now := p.inst.clock.Now()
	if p.call.RewriteLabels != nil {
		p.labels = applyRewrite(p.labels, func(current Labels) Labels {
			return p.call.RewriteLabels(current, chunk, p.inst.opts, p.call)
		})
	}
	ls := p.labels.toObservability()

	if p.firstSeen {
		p.inst.elapsedTime.Observe(milliseconds(now.Sub(p.previous)), ls...)
	} else {
		p.firstSeen = true
		p.first = now
	}

	size := chunkSize(chunk)
	p.inst.chunkSizes.Observe(size, ls...)
	p.throughput += size
	p.chunks++

	p.previous = p.inst.clock.Now()
	return chunk
}

// End records the stream. Only the first call has an effect.
func (p *Pipe) End() {
	p.end.Signal(struct{}{})
}

// Chunks and Throughput report the running totals.
func (p *Pipe) Chunks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunks
}

func (p *Pipe) Throughput() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.throughput
}

func (p *Pipe) finalize() {
	p.mu.Lock()
	defer p.mu.Unlock()

	end := p.inst.clock.Now()
	ls := p.labels.toObservability()

	if !p.firstSeen {
		p.inst.nonEmits.IncAt(end, 1, ls...)
	}
	p.inst.ends.IncAt(end, 1, ls...)
	p.inst.durations.Observe(milliseconds(end.Sub(p.first)), ls...)
	p.inst.throughput.Observe(p.throughput, ls...)
}

// chunkSize is the byte length of binary and text chunks and 1 for any
// other value.
func chunkSize(chunk any) float64 {
	switch c := chunk.(type) {
	case []byte:
		return float64(len(c))
	case string:
		return float64(len(c))
	default:
		return 1
	}
}

// -------------------- Reader --------------------

// Reader measures every successful read of the wrapped reader and ends the
// stream at io.EOF.
type Reader struct {
	r    io.Reader
	pipe *Pipe
}

func (s *StreamInstrumentation) NewReader(r io.Reader, call StreamCallOptions) *Reader {
	return &Reader{r: r, pipe: s.NewPipe(call)}
}

func (r *Reader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	if n > 0 {
		r.pipe.Transform(b[:n])
	}
	if err == io.EOF {
		r.pipe.End()
	}
	return n, err
}

// Close closes the wrapped reader when it is an io.Closer. It does not end
// the stream.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Reader) Pipe() *Pipe { return r.pipe }

// -------------------- Writer --------------------

// Writer measures every write before forwarding it and ends the stream on
// Close.
type Writer struct {
	w    io.Writer
	pipe *Pipe
}

func (s *StreamInstrumentation) NewWriter(w io.Writer, call StreamCallOptions) *Writer {
	return &Writer{w: w, pipe: s.NewPipe(call)}
}

func (w *Writer) Write(b []byte) (int, error) {
	w.pipe.Transform(b)
	return w.w.Write(b)
}

// Close ends the stream and closes the wrapped writer when it is an
// io.Closer.
func (w *Writer) Close() error {
	w.pipe.End()
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *Writer) Pipe() *Pipe { return w.pipe }

// -------------------- Channel --------------------

// Channel forwards every value of in to the returned channel, measuring each
// one as an object-mode chunk. The stream ends when in is closed; the output
// is closed right after. If ctx is done first the output is closed without
// ending the stream.
func Channel[T any](ctx context.Context, s *StreamInstrumentation, in <-chan T, call StreamCallOptions) <-chan T {
	p := s.NewPipe(call)
	out := make(chan T)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					p.End()
					return
				}
				p.Transform(v)
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
