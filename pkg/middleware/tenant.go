package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tenantgate/pkg/problems"
	"tenantgate/pkg/tenants"
)

type ctxTenantKey struct{}

// SlugFromHost returns the left-most DNS label of host (port stripped).
// "acme.example.com" -> "acme".
func SlugFromHost(host string) (string, error) {
	if host == "" {
		return "", problems.ErrMissingHost
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	slug, _, _ := strings.Cut(host, ".")
	return slug, nil
}

// WithTenant resolves the tenant for every request from its Host header and
// stores it in the request context. Resolution hits the provider on each
// request so configuration changes apply without restart.
func WithTenant(prov tenants.Provider, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health/metrics without tenant context
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			slug, err := SlugFromHost(r.Host)
			if err != nil {
				problems.MissingHost(w, r)
				return
			}
			t, err := prov.ResolveTenantBySlug(r.Context(), slug)
			if errors.Is(err, tenants.ErrTenantNotFound) {
				problems.TenantNotFound(w, r)
				return
			}
			if err != nil {
				log.Errorw("tenant lookup failed", "slug", slug, "err", err)
				problems.Internal(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), t)))
		})
	}
}

func ContextWithTenant(ctx context.Context, t tenants.Tenant) context.Context {
	return context.WithValue(ctx, ctxTenantKey{}, t)
}

func TenantFrom(ctx context.Context) tenants.Tenant {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.Tenant)
	}
	return tenants.Tenant{}
}

// TenantFromOK is TenantFrom with a presence flag.
func TenantFromOK(ctx context.Context) (tenants.Tenant, bool) {
	t, ok := ctx.Value(ctxTenantKey{}).(tenants.Tenant)
	return t, ok
}
