package oauthconfigs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"tenantgate/pkg/tenants"
)

type memRegistry struct {
	mu   sync.RWMutex
	byID map[string]CustomOAuthConfig
}

// NewMemoryRegistry returns an in-memory Registry holding configs.
func NewMemoryRegistry(configs ...CustomOAuthConfig) Registry {
	r := &memRegistry{byID: map[string]CustomOAuthConfig{}}
	for _, c := range configs {
		r.byID[c.ID] = c
	}
	return r
}

// NewMemoryRegistryFromSeed reads the "oauth_configs" list of the tenant seed
// document. Client secrets in the seed are ignored.
func NewMemoryRegistryFromSeed(raw []byte) (Registry, error) {
	configs, err := ParseSeed(raw)
	if err != nil {
		return nil, err
	}
	return NewMemoryRegistry(configs...), nil
}

// ParseSeed extracts the "oauth_configs" list from a seed document.
func ParseSeed(raw []byte) ([]CustomOAuthConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var seed struct {
		OAuthConfigs []CustomOAuthConfig `yaml:"oauth_configs"`
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse oauth config seed: %w", err)
	}
	return seed.OAuthConfigs, nil
}

func (m *memRegistry) Get(ctx context.Context, id string) (CustomOAuthConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.byID[id]; ok {
		return c, nil
	}
	return CustomOAuthConfig{}, ErrNotFound
}

func (m *memRegistry) ListByOrganization(ctx context.Context, organizationID string) ([]CustomOAuthConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CustomOAuthConfig
	for _, c := range m.byID {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRegistry) ForTenant(ctx context.Context, t tenants.Tenant) (*CustomOAuthConfig, error) {
	return forTenant(ctx, m, t)
}
