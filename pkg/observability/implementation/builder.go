package implementation

import (
	"context"

	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	ServiceName string
	LogLevel    string

	// MetricsAddr starts a dedicated exposition server when set.
	MetricsAddr string
	// TraceEndpoint is an OTLP/gRPC collector address. Tracing is a no-op
	// when it is empty.
	TraceEndpoint string

	// Gatherers are exposed next to the bundle's own registry.
	Gatherers []prometheus.Gatherer
}

func NewObservability(cfg Config) (observability.Observability, error) {
	log, err := NewZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	meter := NewPrometheusMeter()

	tracer, shutdown, err := NewOtelTracer(context.Background(), cfg.ServiceName, cfg.TraceEndpoint)
	if err != nil {
		return nil, err
	}

	return &observabilityImplementation{
		log:         log,
		meter:       meter,
		tracer:      tracer,
		traceClose:  shutdown,
		metricsAddr: cfg.MetricsAddr,
		gatherers:   cfg.Gatherers,
	}, nil
}
