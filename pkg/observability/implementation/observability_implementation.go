package implementation

import (
	"context"
	"net/http"

	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type observabilityImplementation struct {
	log    observability.Logger
	meter  observability.Meter
	tracer observability.Tracer

	metricsAddr   string
	gatherers     []prometheus.Gatherer
	metricsServer *http.Server
	traceClose    func(context.Context) error
}

func (o *observabilityImplementation) Close(ctx context.Context) error {
	var err error
	if o.metricsServer != nil {
		err = o.metricsServer.Shutdown(ctx)
	}
	if o.traceClose != nil {
		if e := o.traceClose(ctx); err == nil {
			err = e
		}
	}
	return err
}
func (o *observabilityImplementation) Logger() observability.Logger { return o.log }
func (o *observabilityImplementation) Meter() observability.Meter   { return o.meter }
func (o *observabilityImplementation) Start(ctx context.Context) error {
	if o.metricsAddr == "" {
		return nil
	}
	if pm, ok := o.meter.(*prometheusMeter); ok {
		gatherers := append([]prometheus.Gatherer{pm.Registry()}, o.gatherers...)
		o.metricsServer = StartMetricsServer(o.metricsAddr, Merge(gatherers...))
		o.log.Info("metrics server started", observability.String("addr", o.metricsAddr))
	}
	return nil
}
func (o *observabilityImplementation) Tracer() observability.Tracer { return o.tracer }
