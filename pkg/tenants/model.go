package tenants

// Tenant represents one organization-scoped gateway configuration, addressed
// by the left-most DNS label of the request host.
type Tenant struct {
	ID                  string `json:"id" yaml:"id"`     // uuid
	Slug                string `json:"slug" yaml:"slug"` // short name (acme)
	DisplayName         string `json:"display_name" yaml:"display_name"`
	OrganizationID      string `json:"organization_id" yaml:"organization_id"`
	Tools               []Tool `json:"tools" yaml:"tools"`
	CustomOAuthConfigID string `json:"custom_oauth_config_id,omitempty" yaml:"custom_oauth_config_id"`
	// Encrypted tenant secrets (see pkg/secrets); referenced by Tool.SecretRef.
	SecretsEncrypted []byte `json:"-" yaml:"-"`
	// Plaintext secrets, only read from seed documents and sealed on load.
	Secrets map[string]string `json:"-" yaml:"secrets"`
}

// Tool is one entry of a tenant's registered capability set.
type Tool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema"`
	// Upstream URL; call arguments are POSTed to it as JSON.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint"`
	// Static text returned when no endpoint is set.
	Response string `json:"response,omitempty" yaml:"response"`
	// Key in the decrypted tenant secrets sent upstream as x-api-key.
	SecretRef string `json:"secret_ref,omitempty" yaml:"secret_ref"`
}

// HasCustomOAuth reports whether the tenant delegates authorization to an
// external provider.
func (t Tenant) HasCustomOAuth() bool { return t.CustomOAuthConfigID != "" }
