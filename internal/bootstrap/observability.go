package bootstrap

import (
	"github.com/jt828/go-autometric/internal/config"
	"github.com/jt828/go-autometric/pkg/autometric"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/observability/implementation"
	"github.com/prometheus/client_golang/prometheus"
)

// InitializeObservability builds the logging, tracing and metrics bundle for
// cfg. When a dedicated metrics address is configured it also exposes the
// meta-instrumentation registry there.
func InitializeObservability(cfg config.Config) (observability.Observability, error) {
	return implementation.NewObservability(implementation.Config{
		ServiceName:   cfg.ServiceName,
		LogLevel:      cfg.LogLevel,
		MetricsAddr:   cfg.MetricsAddr,
		TraceEndpoint: cfg.TraceEndpoint,
		Gatherers:     []prometheus.Gatherer{autometric.MetaRegistry()},
	})
}
