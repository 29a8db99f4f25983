// Package tenancy propagates the acting tenant through context. The tenant
// is set where work enters the system (webhook intake, engine turns, the
// reminder scheduler) and read where it leaves (outbound sends, request
// logs).
package tenancy

import "context"

type tenantKey struct{}

// WithTenantID returns a context carrying the tenant id. An empty id is
// stored but never reported back.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantIDFromContext returns the tenant id set by WithTenantID, if any.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	tenantID, _ := ctx.Value(tenantKey{}).(string)
	return tenantID, tenantID != ""
}
