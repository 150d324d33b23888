package autometric

import (
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/observability/implementation"
	"github.com/prometheus/client_golang/prometheus"
)

// metaInstrumentation counts what autometric itself allocates. It is a
// process-wide singleton built during package initialisation; ResetMeta is
// the only other way its state changes.
type metaInstrumentation struct {
	registry   *prometheus.Registry
	counters   observability.Counter
	registries observability.Counter
	summaries  observability.Counter
}

var meta = mustNewMeta()

func mustNewMeta() *metaInstrumentation {
	meter := implementation.NewPrometheusMeter()
	return &metaInstrumentation{
		registry: implementation.PromRegistry(meter),
		counters: mustCounter(meter, "autometric_counters_total",
			"Autometric counter for the total amount of created counters"),
		registries: mustCounter(meter, "autometric_registers_total",
			"Autometric counter for the total amount of created registers"),
		summaries: mustCounter(meter, "autometric_summaries_total",
			"Autometric counter for the total amount of created summaries"),
	}
}

func mustCounter(meter observability.Meter, name, help string) observability.Counter {
	c, err := meter.Counter(name, observability.MetricOpt{Help: help})
	if err != nil {
		panic(err)
	}
	return c
}

// MetaRegistry holds the autometric_*_total counters. Add it to the
// gatherers of an exposition endpoint to observe instrumentation overhead.
func MetaRegistry() *prometheus.Registry {
	return meta.registry
}

// ResetMeta zeroes the meta counters. It is meant for test harnesses.
func ResetMeta() {
	meta.counters.Reset()
	meta.registries.Reset()
	meta.summaries.Reset()
}
