package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jt828/go-autometric/internal/config"
	"github.com/jt828/go-autometric/internal/interceptor"
	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/jt828/go-autometric/pkg/autometric"
	"github.com/jt828/go-autometric/pkg/circuitbreaker"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/observability/implementation"
	"github.com/jt828/go-autometric/pkg/snowflake"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
)

// Opener opens an upstream stream. The caller closes the body.
type Opener interface {
	Open(ctx context.Context, url string) (*http.Response, error)
}

type Options struct {
	Config   config.Config
	Logger   observability.Logger
	Tracer   observability.Tracer
	IDs      snowflake.Snowflake
	Upstream Opener
	Clock    clock.Clock
}

// Server relays radio streams and compresses uploads, measuring both with
// autometric instrumentation.
type Server struct {
	cfg      config.Config
	log      observability.Logger
	tracer   observability.Tracer
	upstream Opener

	registry *prometheus.Registry
	handler  http.Handler

	radioRoute    *autometric.MiddlewareInstrumentation
	radioPipe     *autometric.StreamInstrumentation
	compressRoute *autometric.MiddlewareInstrumentation
	compressPipe  *autometric.StreamInstrumentation
}

func New(opts Options) (*Server, error) {
	s := &Server{
		cfg:      opts.Config,
		log:      opts.Logger,
		tracer:   opts.Tracer,
		upstream: opts.Upstream,
		registry: prometheus.NewRegistry(),
	}

	create := autometric.CreateOptions{
		Labels:      autometric.Labels{"service": opts.Config.ServiceName},
		Registerers: []prometheus.Registerer{s.registry},
		Logger:      opts.Logger,
		Clock:       opts.Clock,
	}

	var err error
	s.radioRoute, err = autometric.CreateMiddlewareInstrumentation("radio_stream_middleware", autometric.MiddlewareOptions{
		CreateOptions:      create,
		AddStatusCodeLabel: true,
		AddClosedByLabel:   true,
	})
	if err != nil {
		return nil, err
	}
	s.radioPipe, err = autometric.CreateStreamInstrumentation("radio_stream_pipe", create)
	if err != nil {
		return nil, err
	}
	s.compressRoute, err = autometric.CreateMiddlewareInstrumentation("compression_route", autometric.MiddlewareOptions{
		CreateOptions:      create,
		AddMethodLabel:     true,
		AddStatusCodeLabel: true,
	})
	if err != nil {
		return nil, err
	}
	s.compressPipe, err = autometric.CreateStreamInstrumentation("compression_pipe", create)
	if err != nil {
		return nil, err
	}

	s.handler = s.routes(opts.IDs)
	return s, nil
}

func (s *Server) routes(ids snowflake.Snowflake) http.Handler {
	mux := http.NewServeMux()

	for _, st := range s.cfg.Stations {
		labels := autometric.Labels{"broadcaster": st.Broadcaster, "quality": st.Quality}
		h := interceptor.ErrorInterceptor(s.log, s.relay(st))
		mux.Handle("GET /streams/"+st.Name, s.radioRoute.Middleware(autometric.CallOptions{Labels: labels})(h))
	}
	mux.Handle("GET /streams/{name}", interceptor.ErrorInterceptor(s.log, func(w http.ResponseWriter, r *http.Request) error {
		return fmt.Errorf("%w: station %q", apperror.ErrNotFound, r.PathValue("name"))
	}))

	mux.Handle("POST /compress", s.compressRoute.Middleware(autometric.CallOptions{})(
		interceptor.ErrorInterceptor(s.log, s.compress),
	))

	mux.Handle("GET /metrics", implementation.MetricsHandler(s.Gatherer()))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return interceptor.Recover(s.log, interceptor.RequestLog(s.log, ids, mux))
}

func (s *Server) Handler() http.Handler { return s.handler }

// Gatherer exposes every route and pipe metric together with the
// meta-instrumentation counters.
func (s *Server) Gatherer() prometheus.Gatherer {
	return implementation.Merge(s.registry, autometric.MetaRegistry())
}

// relay copies the station's upstream stream to the client until either side
// stops.
func (s *Server) relay(st config.Station) interceptor.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx, span := s.tracer.Start(r.Context(), "relay "+st.Name)
		defer span.End()

		resp, err := s.upstream.Open(ctx, st.URL)
		if err != nil {
			span.RecordError(err)
			return upstreamError(st.Name, err)
		}

		body := s.radioPipe.NewReader(resp.Body, autometric.StreamCallOptions{
			Labels: autometric.Labels{"broadcaster": st.Broadcaster, "quality": st.Quality},
		})
		defer body.Close()
		// A client that leaves early still ends the stream.
		defer body.Pipe().End()

		if st.ContentType != "" {
			w.Header().Set("Content-Type", st.ContentType)
		}
		w.WriteHeader(http.StatusOK)

		if err := copyFlushing(w, body); err != nil && r.Context().Err() == nil {
			s.log.Warn("relay interrupted", observability.String("station", st.Name), observability.Err(err))
		}
		return nil
	}
}

// compress gzips the request body into the response. Both sides are measured
// as pipes of the same instrumentation, told apart by the state label.
func (s *Server) compress(w http.ResponseWriter, r *http.Request) error {
	in := s.compressPipe.NewReader(r.Body, autometric.StreamCallOptions{
		Labels: autometric.Labels{"state": "uncompressed"},
	})
	defer in.Pipe().End()

	w.Header().Set("Content-Type", "application/gzip")
	out := s.compressPipe.NewWriter(w, autometric.StreamCallOptions{
		Labels: autometric.Labels{"state": "compressed"},
	})
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return fmt.Errorf("%w: read body: %w", apperror.ErrInvalidArgument, err)
	}
	return gz.Close()
}

// Run serves until ctx is done, then drains in-flight requests for up to
// grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", observability.String("addr", s.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	s.log.Info("graceful stopping http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func upstreamError(station string, err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: station %q: %w", apperror.ErrUnavailable, station, err)
	}
	return fmt.Errorf("%w: station %q: %w", apperror.ErrUpstream, station, err)
}

func copyFlushing(w http.ResponseWriter, r io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
