package interceptor

import (
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/jt828/go-autometric/pkg/observability"
	"github.com/jt828/go-autometric/pkg/snowflake"
)

const RequestIDHeader = "X-Request-Id"

// RequestLog tags every request with a snowflake id, echoed in the response
// header, and logs it once the handler returns.
func RequestLog(log observability.Logger, ids snowflake.Snowflake, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = ids.GenerateString()
		}
		w.Header().Set(RequestIDHeader, id)

		m := httpsnoop.CaptureMetrics(next, w, r)

		log.Info("request",
			observability.String("requestId", id),
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Int("status", m.Code),
			observability.Int64("bytes", m.Written),
			observability.Duration("duration", m.Duration.Round(time.Microsecond)),
		)
	})
}
