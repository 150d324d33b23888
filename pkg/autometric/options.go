package autometric

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/observability/implementation"
	"github.com/prometheus/client_golang/prometheus"
)

// CreateOptions are shared by every Create*Instrumentation call.
type CreateOptions struct {
	// Labels are attached to every observation.
	Labels Labels
	// Registerers receive every instrument in addition to the dedicated
	// registry.
	Registerers []prometheus.Registerer

	Logger observability.Logger
	Clock  clock.Clock

	// Objectives and MaxAge tune the summary quantiles. Buckets turns the
	// distributions into histograms instead.
	Objectives map[float64]float64
	MaxAge     time.Duration
	Buckets    []float64
}

func (o CreateOptions) withDefaults() CreateOptions {
	if o.Logger == nil {
		o.Logger = implementation.NewNopLogger()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// CallOptions apply to one middleware invocation.
type CallOptions struct {
	Labels Labels
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
