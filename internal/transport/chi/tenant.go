package chi

import (
	"context"
	"net/http"
	"regexp"
)

// TenantHeader carries the tenant scope of every data-plane request.
const TenantHeader = "X-Tenant-ID"

var tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type tenantCtxKey struct{}

// TenantMiddleware extracts and validates the tenant header. Data-plane
// routes refuse to run without a tenant scope; there is no cross-tenant
// fallback.
func TenantMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get(TenantHeader)
			if tenant == "" {
				writeError(w, http.StatusBadRequest, codeTenantRequired,
					TenantHeader+" header is required")
				return
			}
			if !tenantIDRegex.MatchString(tenant) {
				writeError(w, http.StatusBadRequest, codeTenantRequired,
					"tenant id must be alphanumeric with underscores and hyphens, max 64 chars")
				return
			}
			ctx := context.WithValue(r.Context(), tenantCtxKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tenantFromContext returns the tenant set by TenantMiddleware.
func tenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}
