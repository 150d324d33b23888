package observability

import "time"

// Meter allocates metric instruments. Label names are not fixed up front:
// every distinct label set passed to an instrument becomes its own series.
type Meter interface {
	Counter(name string, opts ...MetricOpt) (Counter, error)
	Distribution(name string, opts ...MetricOpt) (Distribution, error)
}

type Counter interface {
	Inc(v float64, labels ...Label)
	IncAt(t time.Time, v float64, labels ...Label)
	Reset()
}

type Distribution interface {
	Observe(v float64, labels ...Label)
	Reset()
}
