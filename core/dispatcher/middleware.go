package dispatcher

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/logging"
)

// recoveryMiddleware recovers from panics in a request handler, logs the
// stack, and emits the same {error, message} envelope the dispatcher uses
// for a synthesized engine error, mirroring
// infrastructure/middleware.RecoveryMiddleware.
func recoveryMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithContext(r.Context()).WithFields(logrus.Fields{
						"panic":       fmt.Sprintf("%v", rec),
						"stack":       string(debug.Stack()),
						"path":        r.URL.Path,
						"method":      r.Method,
						"remote_addr": r.RemoteAddr,
					}).Error("panic recovered")

					apiErr := apierr.New(apierr.InternalError, "internal server error")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(apiErr.HTTPStatus())
					_, _ = w.Write([]byte(`{"error":"` + string(apiErr.Kind) + `","message":"` + jsonEscape(apiErr.Message) + `"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs one structured line per request, tagging the
// context with a fresh invocation id so downstream logging.Logger.WithContext
// calls (including the recorder's own logging) correlate to the same
// request, mirroring infrastructure/middleware.LoggingMiddleware's
// trace-id-per-request shape.
func loggingMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := logging.NewInvocationID()
			ctx := logging.WithInvocation(r.Context(), requestID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Request-ID", requestID)

			wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.WithContext(ctx).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request handled")
		})
	}
}
