// Package autometric instruments three shapes of asynchronous work with
// uniform Prometheus metrics: HTTP exchanges (Middleware), single-value
// computations (Promise) and chunked pass-through streams (Pipe).
//
// Each Create*Instrumentation call allocates a fixed set of instruments named
// after its prefix, registered into a dedicated registry and into any extra
// registerers supplied by the caller:
//
//	inst, err := autometric.CreateMiddlewareInstrumentation("api", autometric.MiddlewareOptions{
//		AddStatusCodeLabel: true,
//	})
//	mux.Handle("/", inst.Middleware(autometric.CallOptions{})(handler))
//
// Every tracked unit is finalized at most once, by the first of its
// completion signals. A unit that never completes is never recorded.
package autometric
