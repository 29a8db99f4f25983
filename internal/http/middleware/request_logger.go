package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/convia-ai/convia/internal/tenancy"
	"github.com/convia-ai/convia/pkg/logging"
)

// RequestLogger logs one line per completed request with status, duration,
// the chi request id, and the tenant when one is on the context.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
				"remote_ip", r.RemoteAddr,
			}
			if tenantID, ok := tenancy.TenantIDFromContext(r.Context()); ok {
				attrs = append(attrs, "tenant_id", tenantID)
			}
			logger.Info("http request", attrs...)
		})
	}
}
