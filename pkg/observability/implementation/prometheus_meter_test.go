package implementation

import (
	"testing"
	"time"

	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherFamily(t *testing.T, g prometheus.Gatherer, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelMap(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestPrometheusMeter_Counter(t *testing.T) {
	t.Run("series per label set", func(t *testing.T) {
		meter := NewPrometheusMeter()
		c, err := meter.Counter("requests_total", observability.MetricOpt{Help: "requests"})
		require.NoError(t, err)

		c.Inc(1, observability.Label{Key: "method", Value: "GET"})
		c.Inc(2, observability.Label{Key: "method", Value: "GET"})
		c.Inc(1, observability.Label{Key: "method", Value: "POST"}, observability.Label{Key: "code", Value: "500"})
		c.Inc(1)

		mf := gatherFamily(t, PromRegistry(meter), "requests_total")
		require.NotNil(t, mf)
		assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())
		assert.Equal(t, "requests", mf.GetHelp())
		require.Len(t, mf.GetMetric(), 3)

		values := map[string]float64{}
		for _, m := range mf.GetMetric() {
			values[labelMap(m)["method"]+"/"+labelMap(m)["code"]] = m.GetCounter().GetValue()
		}
		assert.Equal(t, map[string]float64{"GET/": 3, "POST/500": 1, "/": 1}, values)
	})

	t.Run("IncAt stamps the sample", func(t *testing.T) {
		meter := NewPrometheusMeter()
		c, err := meter.Counter("stamped_total")
		require.NoError(t, err)

		at := time.UnixMilli(1_700_000_000_000)
		c.IncAt(at, 1)

		mf := gatherFamily(t, PromRegistry(meter), "stamped_total")
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, at.UnixMilli(), mf.GetMetric()[0].GetTimestampMs())
	})

	t.Run("negative increments panic", func(t *testing.T) {
		c, err := NewPrometheusMeter().Counter("neg_total")
		require.NoError(t, err)
		assert.Panics(t, func() { c.Inc(-1) })
	})

	t.Run("reset drops every series", func(t *testing.T) {
		meter := NewPrometheusMeter()
		c, err := meter.Counter("reset_total")
		require.NoError(t, err)
		c.Inc(1, observability.Label{Key: "a", Value: "b"})
		c.Reset()

		count, err := testutil.GatherAndCount(PromRegistry(meter), "reset_total")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("const labels are merged", func(t *testing.T) {
		meter := NewPrometheusMeter()
		c, err := meter.Counter("const_total", observability.MetricOpt{
			ConstLabels: []observability.Label{{Key: "app", Value: "demo"}},
		})
		require.NoError(t, err)
		c.Inc(1, observability.Label{Key: "route", Value: "/x"})

		mf := gatherFamily(t, PromRegistry(meter), "const_total")
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, map[string]string{"app": "demo", "route": "/x"}, labelMap(mf.GetMetric()[0]))
	})
}

func TestPrometheusMeter_Distribution(t *testing.T) {
	t.Run("summary by default", func(t *testing.T) {
		meter := NewPrometheusMeter()
		d, err := meter.Distribution("latency_ms")
		require.NoError(t, err)
		d.Observe(10, observability.Label{Key: "route", Value: "/a"})
		d.Observe(30, observability.Label{Key: "route", Value: "/a"})

		mf := gatherFamily(t, PromRegistry(meter), "latency_ms")
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, dto.MetricType_SUMMARY, mf.GetType())
		s := mf.GetMetric()[0].GetSummary()
		assert.Equal(t, uint64(2), s.GetSampleCount())
		assert.Equal(t, 40.0, s.GetSampleSum())
		assert.Len(t, s.GetQuantile(), len(observability.DefaultObjectives))
	})

	t.Run("histogram with buckets", func(t *testing.T) {
		meter := NewPrometheusMeter()
		d, err := meter.Distribution("size_bytes", observability.MetricOpt{Buckets: []float64{1, 10, 100}})
		require.NoError(t, err)
		d.Observe(5)

		mf := gatherFamily(t, PromRegistry(meter), "size_bytes")
		assert.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
		assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
	})

	t.Run("reserved label is renamed", func(t *testing.T) {
		meter := NewPrometheusMeter()
		d, err := meter.Distribution("reserved_ms")
		require.NoError(t, err)
		d.Observe(1, observability.Label{Key: "quantile", Value: "x"})

		mf := gatherFamily(t, PromRegistry(meter), "reserved_ms")
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, "x", labelMap(mf.GetMetric()[0])["exported_quantile"])
	})
}

func TestPrometheusMeter_Register(t *testing.T) {
	t.Run("also registers into targets", func(t *testing.T) {
		target := prometheus.NewRegistry()
		meter := NewPrometheusMeter(target)
		c, err := meter.Counter("shared_total")
		require.NoError(t, err)
		c.Inc(1)

		count, err := testutil.GatherAndCount(target, "shared_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("duplicate names are configuration errors", func(t *testing.T) {
		meter := NewPrometheusMeter()
		_, err := meter.Counter("dup_total")
		require.NoError(t, err)

		_, err = meter.Counter("dup_total")
		assert.ErrorIs(t, err, apperror.ErrConfiguration)
	})

	t.Run("rolls back when a target rejects", func(t *testing.T) {
		target := prometheus.NewRegistry()
		_, err := NewPrometheusMeter(target).Counter("taken_total")
		require.NoError(t, err)

		meter := NewPrometheusMeter(target)
		_, err = meter.Counter("taken_total")
		assert.ErrorIs(t, err, apperror.ErrConfiguration)

		// The meter's own registry no longer holds the rejected family.
		err = PromRegistry(meter).Register(prometheus.NewCounter(prometheus.CounterOpts{Name: "taken_total"}))
		assert.NoError(t, err)
	})

	t.Run("unregister frees the name", func(t *testing.T) {
		target := prometheus.NewRegistry()
		meter := NewPrometheusMeter(target)
		c, err := meter.Counter("freed_total")
		require.NoError(t, err)

		Unregister(meter, c)

		_, err = meter.Counter("freed_total")
		assert.NoError(t, err)
	})
}

func TestExposition(t *testing.T) {
	a := NewPrometheusMeter()
	b := NewPrometheusMeter()
	ca, err := a.Counter("alpha_total", observability.MetricOpt{Help: "alpha"})
	require.NoError(t, err)
	cb, err := b.Counter("beta_total", observability.MetricOpt{Help: "beta"})
	require.NoError(t, err)
	ca.Inc(1)
	cb.Inc(2)

	contentType, body, err := Exposition(Merge(PromRegistry(a), PromRegistry(b)))
	require.NoError(t, err)

	assert.Contains(t, contentType, "text/plain")
	assert.Contains(t, string(body), "# HELP alpha_total alpha")
	assert.Contains(t, string(body), "alpha_total 1")
	assert.Contains(t, string(body), "beta_total 2")
}
