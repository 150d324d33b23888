package autometric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, g prometheus.Gatherer, name string) *dto.MetricFamily {
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

// counterTotal sums every series of a counter family; a family that was
// never written counts as zero.
func counterTotal(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	var total float64
	if mf := family(t, g, name); mf != nil {
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func summaryCount(t *testing.T, g prometheus.Gatherer, name string) uint64 {
	t.Helper()
	var total uint64
	if mf := family(t, g, name); mf != nil {
		for _, m := range mf.GetMetric() {
			total += m.GetSummary().GetSampleCount()
		}
	}
	return total
}

func summarySum(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	var total float64
	if mf := family(t, g, name); mf != nil {
		for _, m := range mf.GetMetric() {
			total += m.GetSummary().GetSampleSum()
		}
	}
	return total
}

// series returns the one series of name whose labels equal want exactly.
func series(t *testing.T, g prometheus.Gatherer, name string, want Labels) *dto.Metric {
	t.Helper()
	mf := family(t, g, name)
	require.NotNil(t, mf, "metric %s not gathered", name)
	for _, m := range mf.GetMetric() {
		if labelsOf(m).equal(want) {
			return m
		}
	}
	require.Failf(t, "series not found", "%s%v", name, want)
	return nil
}

func labelsOf(m *dto.Metric) Labels {
	out := make(Labels, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func (l Labels) equal(other Labels) bool {
	if len(l) != len(other) {
		return false
	}
	for k, v := range l {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
