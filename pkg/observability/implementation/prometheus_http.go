package implementation

import (
	"bytes"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

func StartMetricsServer(
	addr string,
	g prometheus.Gatherer,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(g))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() { _ = srv.ListenAndServe() }()

	return srv
}

// MetricsHandler serves the exposition of g. Gathering errors are logged by
// promhttp and the remaining families are still served.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Merge combines several registries into one read-only view. Families with
// the same name are merged by the gatherers.
func Merge(gs ...prometheus.Gatherer) prometheus.Gatherer {
	return prometheus.Gatherers(gs)
}

// Exposition renders g in the Prometheus text format.
func Exposition(g prometheus.Gatherer) (string, []byte, error) {
	mfs, err := g.Gather()
	if err != nil {
		return "", nil, err
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return "", nil, err
		}
	}
	return string(format), buf.Bytes(), nil
}
