package oauth

import (
	"context"

	"tenantgate/pkg/oauthconfigs"
	"tenantgate/pkg/tenants"
)

// ServerMetadata is the authorization server document the gateway publishes
// for a tenant host.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// ProtectedResource is the RFC 9728 resource metadata for a tenant host.
type ProtectedResource struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// Discovery builds tenant-scoped discovery documents.
type Discovery struct {
	internalBaseURL string
	registry        oauthconfigs.Registry
	validator       *MetadataValidator
}

func NewDiscovery(internalBaseURL string, registry oauthconfigs.Registry, validator *MetadataValidator) *Discovery {
	return &Discovery{internalBaseURL: internalBaseURL, registry: registry, validator: validator}
}

// ServerMetadata describes the gateway as the authorization server for host.
// Tenants with a custom provider advertise the upstream scopes when its
// metadata validates; otherwise the defaults are served.
func (d *Discovery) ServerMetadata(ctx context.Context, host string, t tenants.Tenant) (ServerMetadata, error) {
	public := "https://" + host
	md := ServerMetadata{
		Issuer:                            public,
		AuthorizationEndpoint:             public + "/authorize",
		TokenEndpoint:                     d.internalBaseURL + "/auth/mcp/token",
		RegistrationEndpoint:              d.internalBaseURL + "/auth/mcp/register",
		JWKSURI:                           public + "/oauth/jwks",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{MethodS256},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post"},
	}
	if d.registry == nil {
		return md, nil
	}
	custom, err := d.registry.ForTenant(ctx, t)
	if err != nil || custom == nil {
		return md, err
	}
	if upstream := d.validator.FetchAndValidate(ctx, custom.MetadataURL); upstream != nil {
		md.ScopesSupported = upstream.ScopesSupported
	}
	return md, nil
}

func (d *Discovery) ProtectedResource(host string) ProtectedResource {
	public := "https://" + host
	return ProtectedResource{Resource: public, AuthorizationServers: []string{public}}
}
