package oauthconfigs

import (
	"context"
	"errors"
	"time"

	"tenantgate/pkg/tenants"
)

// ErrNotFound is returned when a config id does not exist.
var ErrNotFound = errors.New("custom oauth config not found")

// CustomOAuthConfig describes an external OAuth provider an organization
// registered for its tenants. The client secret never leaves the store.
type CustomOAuthConfig struct {
	ID               string    `json:"id" yaml:"id"`
	OrganizationID   string    `json:"organizationId" yaml:"organization_id"`
	Name             string    `json:"name" yaml:"name"`
	MetadataURL      string    `json:"metadataUrl" yaml:"metadata_url"`
	AuthorizationURL string    `json:"authorizationUrl" yaml:"authorization_url"`
	ClientID         string    `json:"clientId" yaml:"client_id"`
	CreatedAt        time.Time `json:"createdAt" yaml:"created_at"`
}

type Registry interface {
	Get(ctx context.Context, id string) (CustomOAuthConfig, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]CustomOAuthConfig, error)
	// ForTenant returns the config associated with t, or nil when the tenant
	// uses the gateway's own authorization flow.
	ForTenant(ctx context.Context, t tenants.Tenant) (*CustomOAuthConfig, error)
}

// forTenant is shared by the implementations.
func forTenant(ctx context.Context, r Registry, t tenants.Tenant) (*CustomOAuthConfig, error) {
	if !t.HasCustomOAuth() {
		return nil, nil
	}
	c, err := r.Get(ctx, t.CustomOAuthConfigID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
