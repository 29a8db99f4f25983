package middleware

import (
	"net/http"

	"github.com/convia-ai/convia/internal/tenancy"
)

// TenantHeader lifts the X-Tenant-Id header into the request context so
// downstream handlers and clients can scope their work without re-parsing
// the request.
func TenantHeader() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tenantID := r.Header.Get("X-Tenant-Id"); tenantID != "" {
				r = r.WithContext(tenancy.WithTenantID(r.Context(), tenantID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
