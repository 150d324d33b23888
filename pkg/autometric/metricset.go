package autometric

import (
	"fmt"

	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/observability/implementation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
)

type InstrumentKind int

const (
	KindCounter InstrumentKind = iota + 1
	KindDistribution
)

func (k InstrumentKind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindDistribution:
		return "distribution"
	default:
		return fmt.Sprintf("InstrumentKind(%d)", int(k))
	}
}

// InstrumentSpec describes one instrument of a MetricSet. The metric is
// named <prefix>_<Suffix>.
type InstrumentSpec struct {
	Key    string
	Suffix string
	Kind   InstrumentKind
	Help   string
}

// MetricSet owns the instruments of one named instrumentation.
type MetricSet struct {
	name          string
	registry      *prometheus.Registry
	counters      map[string]observability.Counter
	distributions map[string]observability.Distribution
}

// NewMetricSet registers every spec into a fresh registry and into each of
// opts.Registerers. Invalid specs and name collisions yield an error wrapping
// apperror.ErrConfiguration, in which case nothing stays registered.
func NewMetricSet(name string, specs []InstrumentSpec, opts CreateOptions) (*MetricSet, error) {
	if err := validateSpecs(name, specs); err != nil {
		return nil, err
	}

	meter := implementation.NewPrometheusMeter(opts.Registerers...)
	meta.registries.Inc(1)

	set := &MetricSet{
		name:          name,
		registry:      implementation.PromRegistry(meter),
		counters:      make(map[string]observability.Counter),
		distributions: make(map[string]observability.Distribution),
	}

	var created []any
	for _, spec := range specs {
		metricName := name + "_" + spec.Suffix
		opt := observability.MetricOpt{
			Help:       spec.Help,
			Objectives: opts.Objectives,
			MaxAge:     opts.MaxAge,
			Buckets:    opts.Buckets,
		}

		switch spec.Kind {
		case KindCounter:
			c, err := meter.Counter(metricName, opt)
			if err != nil {
				implementation.Unregister(meter, created...)
				return nil, fmt.Errorf("create %s %q: %w", spec.Kind, metricName, err)
			}
			meta.counters.Inc(1)
			set.counters[spec.Key] = c
			created = append(created, c)
		case KindDistribution:
			d, err := meter.Distribution(metricName, opt)
			if err != nil {
				implementation.Unregister(meter, created...)
				return nil, fmt.Errorf("create %s %q: %w", spec.Kind, metricName, err)
			}
			meta.summaries.Inc(1)
			set.distributions[spec.Key] = d
			created = append(created, d)
		}
	}

	return set, nil
}

func validateSpecs(name string, specs []InstrumentSpec) error {
	if name == "" {
		return fmt.Errorf("%w: instrumentation name is empty", apperror.ErrConfiguration)
	}
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		switch {
		case spec.Key == "" || spec.Suffix == "":
			return fmt.Errorf("%w: instrument of %q needs a key and a suffix", apperror.ErrConfiguration, name)
		case spec.Kind != KindCounter && spec.Kind != KindDistribution:
			return fmt.Errorf("%w: instrument %q has unknown kind %s", apperror.ErrConfiguration, spec.Key, spec.Kind)
		case seen[spec.Key]:
			return fmt.Errorf("%w: instrument key %q declared twice", apperror.ErrConfiguration, spec.Key)
		case !model.IsValidLegacyMetricName(name + "_" + spec.Suffix):
			// Escaping would fold names like a-b and a_b into one exported family.
			return fmt.Errorf("%w: %q is not a valid metric name", apperror.ErrConfiguration, name+"_"+spec.Suffix)
		}
		seen[spec.Key] = true
	}
	return nil
}

func (s *MetricSet) Name() string { return s.name }

// Registry is the registry dedicated to this set.
func (s *MetricSet) Registry() *prometheus.Registry { return s.registry }

// Counter returns the counter declared under key, or nil.
func (s *MetricSet) Counter(key string) observability.Counter { return s.counters[key] }

// Distribution returns the distribution declared under key, or nil.
func (s *MetricSet) Distribution(key string) observability.Distribution {
	return s.distributions[key]
}

// withHelp fills the prefix into each spec's help template.
func withHelp(specs []InstrumentSpec, name string) []InstrumentSpec {
	out := make([]InstrumentSpec, len(specs))
	for i, spec := range specs {
		spec.Help = fmt.Sprintf(spec.Help, name)
		out[i] = spec
	}
	return out
}
