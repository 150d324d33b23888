package implementation

import (
	"errors"
	"fmt"

	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

type prometheusMeter struct {
	registry *prometheus.Registry
	targets  []prometheus.Registerer
}

// NewPrometheusMeter returns a meter backed by a fresh registry. Every
// instrument it creates is also registered into each of targets.
func NewPrometheusMeter(targets ...prometheus.Registerer) observability.Meter {
	return &prometheusMeter{
		registry: prometheus.NewRegistry(),
		targets:  targets,
	}
}

func (m *prometheusMeter) Registry() *prometheus.Registry {
	return m.registry
}

func PromRegistry(m observability.Meter) *prometheus.Registry {
	if pm, ok := m.(*prometheusMeter); ok {
		return pm.Registry()
	}
	return nil
}

// -------------------- Counter --------------------

func (m *prometheusMeter) Counter(name string, opts ...observability.MetricOpt) (observability.Counter, error) {
	c := newCounterFamily(name, firstOpt(opts))
	if err := m.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// -------------------- Distribution --------------------

func (m *prometheusMeter) Distribution(name string, opts ...observability.MetricOpt) (observability.Distribution, error) {
	d := newDistributionFamily(name, firstOpt(opts))
	if err := m.register(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Unregister removes instruments created by m from its registry and from
// every target. Instruments from other meters are ignored.
func Unregister(m observability.Meter, instruments ...any) {
	pm, ok := m.(*prometheusMeter)
	if !ok {
		return
	}
	for _, inst := range instruments {
		c, ok := inst.(prometheus.Collector)
		if !ok {
			continue
		}
		pm.registry.Unregister(c)
		for _, t := range pm.targets {
			t.Unregister(c)
		}
	}
}

// -------------------- Helpers --------------------

// register adds c to the meter's own registry and to every target. It is all
// or nothing: on any failure c is removed again from where it was added.
func (m *prometheusMeter) register(c prometheus.Collector) error {
	if err := m.registry.Register(c); err != nil {
		return registrationError(err)
	}

	registered := []prometheus.Registerer{m.registry}
	var errs error
	for _, t := range m.targets {
		if err := t.Register(c); err != nil {
			errs = multierr.Append(errs, registrationError(err))
			continue
		}
		registered = append(registered, t)
	}

	if errs != nil {
		for _, r := range registered {
			r.Unregister(c)
		}
		return errs
	}
	return nil
}

func registrationError(err error) error {
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return fmt.Errorf("%w: duplicate metric registration: %v", apperror.ErrConfiguration, err)
	}
	return fmt.Errorf("%w: %v", apperror.ErrConfiguration, err)
}

func firstOpt(opts []observability.MetricOpt) observability.MetricOpt {
	if len(opts) == 0 {
		return observability.MetricOpt{}
	}
	return opts[0]
}

func toPromLabelsMap(labels []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(labels))
	for _, l := range labels {
		m[l.Key] = l.Value
	}
	return m
}

func toPromConstLabels(labels []observability.Label) prometheus.Labels {
	return toPromLabelsMap(labels)
}

func mergeLabels(constLabels prometheus.Labels, dynamicLabels []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(constLabels)+len(dynamicLabels))
	for k, v := range constLabels {
		m[k] = v
	}
	for _, l := range dynamicLabels {
		m[l.Key] = l.Value
	}
	return m
}
