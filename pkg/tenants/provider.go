package tenants

import (
	"context"
	"errors"
)

// ErrTenantNotFound is returned by providers when no tenant matches.
var ErrTenantNotFound = errors.New("tenant not found")

type Provider interface {
	// Resolve tenant from the subdomain slug (exact match).
	ResolveTenantBySlug(ctx context.Context, slug string) (Tenant, error)
	ResolveTenantByID(ctx context.Context, id string) (Tenant, error)
}
