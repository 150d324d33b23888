package interceptor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/jt828/go-autometric/pkg/observability"
)

// HandlerFunc is an http handler that reports failures instead of writing
// them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorInterceptor turns h into an http.Handler, translating returned errors
// into status codes.
func ErrorInterceptor(log observability.Logger, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(log, w, r, err)
		}
	})
}

func WriteError(log observability.Logger, w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error("unhandled error", observability.Err(err), observability.String("path", r.URL.Path))
		http.Error(w, "internal server error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Recover logs a panicking handler and answers 500. The response may already
// be partially written, in which case the status cannot change.
func Recover(log observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				log.Error("panic recovered", observability.String("panic", fmt.Sprintf("%v", p)), observability.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
