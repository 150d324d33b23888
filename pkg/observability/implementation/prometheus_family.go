package implementation

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// The families below are collectors whose label names are not known up
// front. Each distinct label set is kept as its own series and exported with
// the labels as constant label pairs, so a single family may expose series
// with different dimensions.

const (
	quantileLabel  = "quantile"
	bucketLabel    = "le"
	exportedPrefix = "exported_"
)

var errCounterDecrease = errors.New("counter cannot decrease in value")

// -------------------- Counter --------------------

type counterSeries struct {
	desc  *prometheus.Desc
	value float64
	ts    time.Time
}

type counterFamily struct {
	name        string
	help        string
	constLabels prometheus.Labels
	desc        *prometheus.Desc

	mu     sync.Mutex
	series map[string]*counterSeries
}

func newCounterFamily(name string, opt observability.MetricOpt) *counterFamily {
	constLabels := toPromConstLabels(opt.ConstLabels)
	return &counterFamily{
		name:        name,
		help:        opt.Help,
		constLabels: constLabels,
		desc:        prometheus.NewDesc(name, opt.Help, nil, constLabels),
		series:      make(map[string]*counterSeries),
	}
}

func (f *counterFamily) Inc(v float64, labels ...observability.Label) {
	f.IncAt(time.Time{}, v, labels...)
}

// IncAt adds v to the series identified by labels and stamps the sample with
// t. A zero t exports the sample without a timestamp.
func (f *counterFamily) IncAt(t time.Time, v float64, labels ...observability.Label) {
	if v < 0 {
		panic(errCounterDecrease)
	}

	set := mergeLabels(f.constLabels, labels)
	key := seriesKey(set)

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.series[key]
	if !ok {
		s = &counterSeries{desc: prometheus.NewDesc(f.name, f.help, nil, set)}
		f.series[key] = s
	}
	s.value += v
	if !t.IsZero() {
		s.ts = t
	}
}

func (f *counterFamily) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = make(map[string]*counterSeries)
}

func (f *counterFamily) Describe(ch chan<- *prometheus.Desc) {
	ch <- f.desc
}

func (f *counterFamily) Collect(ch chan<- prometheus.Metric) {
	f.mu.Lock()
	snapshot := make([]counterSeries, 0, len(f.series))
	for _, s := range f.series {
		snapshot = append(snapshot, *s)
	}
	f.mu.Unlock()

	for _, s := range snapshot {
		m, err := prometheus.NewConstMetric(s.desc, prometheus.CounterValue, s.value)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(s.desc, err)
			continue
		}
		if !s.ts.IsZero() {
			m = prometheus.NewMetricWithTimestamp(s.ts, m)
		}
		ch <- m
	}
}

// -------------------- Distribution --------------------

type observerCollector interface {
	prometheus.Observer
	prometheus.Collector
}

type distributionFamily struct {
	name        string
	help        string
	constLabels prometheus.Labels
	opt         observability.MetricOpt
	desc        *prometheus.Desc
	reserved    string

	mu     sync.Mutex
	series map[string]observerCollector
}

func newDistributionFamily(name string, opt observability.MetricOpt) *distributionFamily {
	reserved := quantileLabel
	if len(opt.Buckets) > 0 {
		reserved = bucketLabel
	}
	constLabels := toPromConstLabels(opt.ConstLabels)
	return &distributionFamily{
		name:        name,
		help:        opt.Help,
		constLabels: constLabels,
		opt:         opt,
		desc:        prometheus.NewDesc(name, opt.Help, nil, constLabels),
		reserved:    reserved,
		series:      make(map[string]observerCollector),
	}
}

func (f *distributionFamily) Observe(v float64, labels ...observability.Label) {
	set := mergeLabels(f.constLabels, labels)
	if val, ok := set[f.reserved]; ok {
		delete(set, f.reserved)
		set[exportedPrefix+f.reserved] = val
	}
	key := seriesKey(set)

	f.mu.Lock()
	s, ok := f.series[key]
	if !ok {
		s = f.newSeries(set)
		f.series[key] = s
	}
	f.mu.Unlock()

	s.Observe(v)
}

func (f *distributionFamily) newSeries(set prometheus.Labels) observerCollector {
	if len(f.opt.Buckets) > 0 {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        f.name,
			Help:        f.help,
			ConstLabels: set,
			Buckets:     f.opt.Buckets,
		})
	}

	objectives := f.opt.Objectives
	if objectives == nil {
		objectives = observability.DefaultObjectives
	}
	return prometheus.NewSummary(prometheus.SummaryOpts{
		Name:        f.name,
		Help:        f.help,
		ConstLabels: set,
		Objectives:  objectives,
		MaxAge:      f.opt.MaxAge,
	})
}

func (f *distributionFamily) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = make(map[string]observerCollector)
}

func (f *distributionFamily) Describe(ch chan<- *prometheus.Desc) {
	ch <- f.desc
}

func (f *distributionFamily) Collect(ch chan<- prometheus.Metric) {
	f.mu.Lock()
	snapshot := make([]observerCollector, 0, len(f.series))
	for _, s := range f.series {
		snapshot = append(snapshot, s)
	}
	f.mu.Unlock()

	for _, s := range snapshot {
		s.Collect(ch)
	}
}

// seriesKey identifies a label set independently of map iteration order.
func seriesKey(set prometheus.Labels) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0xfe)
		b.WriteString(set[k])
		b.WriteByte(0xff)
	}
	return b.String()
}
