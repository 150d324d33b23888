package observability

import "time"

type Label struct {
	Key   string
	Value string
}

type MetricOpt struct {
	Help        string
	ConstLabels []Label

	// Buckets switches a Distribution from a summary to a histogram.
	Buckets []float64

	// Objectives and MaxAge configure summary quantiles. A nil Objectives
	// map selects DefaultObjectives.
	Objectives map[float64]float64
	MaxAge     time.Duration
}

// DefaultObjectives are the quantiles reported by summary distributions when
// no objectives are configured.
var DefaultObjectives = map[float64]float64{
	0.01:  0.001,
	0.05:  0.005,
	0.5:   0.05,
	0.9:   0.01,
	0.95:  0.005,
	0.99:  0.001,
	0.999: 0.0001,
}
