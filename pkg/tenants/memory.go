package tenants

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tenantgate/pkg/secrets"
)

// Seed is the on-disk (YAML or JSON) layout used to populate the in-memory
// providers in dev and tests.
type Seed struct {
	Tenants []Tenant `yaml:"tenants"`
}

// ParseSeed decodes a YAML or JSON seed document. JSON is accepted because it
// is a subset of YAML.
func ParseSeed(raw []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("parse tenant seed: %w", err)
	}
	return s, nil
}

// ReadSeed loads the seed from file (preferred) or from an inline document.
func ReadSeed(file, inline string) ([]byte, error) {
	if file != "" {
		return os.ReadFile(file)
	}
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	return nil, nil
}

type memProvider struct {
	log    *zap.SugaredLogger
	mu     sync.RWMutex
	bySlug map[string]Tenant
}

// MemoryProvider is the in-memory Provider. Put and Delete let tests and dev
// tooling change tenant configuration at runtime.
type MemoryProvider interface {
	Provider
	Put(t Tenant)
	Delete(slug string)
}

func NewMemoryProvider(log *zap.SugaredLogger, tenants ...Tenant) MemoryProvider {
	p := &memProvider{log: log, bySlug: map[string]Tenant{}}
	for _, t := range tenants {
		p.Put(t)
	}
	return p
}

// NewMemoryProviderFromSeed builds the dev provider. Without a seed a single
// "dev" tenant with an echo tool is registered so local clients can connect to
// dev.localhost.
func NewMemoryProviderFromSeed(log *zap.SugaredLogger, raw []byte, box *secrets.Box) (MemoryProvider, error) {
	if len(raw) == 0 {
		return NewMemoryProvider(log, DevTenant()), nil
	}
	seed, err := ParseSeed(raw)
	if err != nil {
		return nil, err
	}
	for i, t := range seed.Tenants {
		if !ValidSlug(t.Slug) {
			return nil, fmt.Errorf("tenant %q: invalid slug %q", t.ID, t.Slug)
		}
		if err := sealSecrets(&seed.Tenants[i], box); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", t.Slug, err)
		}
	}
	log.Infow("tenant seed loaded", "tenants", len(seed.Tenants))
	return NewMemoryProvider(log, seed.Tenants...), nil
}

// sealSecrets moves seed plaintext secrets into SecretsEncrypted.
func sealSecrets(t *Tenant, box *secrets.Box) error {
	if len(t.Secrets) == 0 {
		return nil
	}
	blob, err := box.Seal(t.Secrets)
	if err != nil {
		return err
	}
	t.SecretsEncrypted = blob
	t.Secrets = nil
	return nil
}

func DevTenant() Tenant {
	return Tenant{
		ID:          "00000000-0000-0000-0000-000000000001",
		Slug:        "dev",
		DisplayName: "Development",
		Tools: []Tool{{
			Name:        "ping",
			Description: "Connectivity check; returns pong.",
			Response:    "pong",
		}},
	}
}

func (m *memProvider) Put(t Tenant) {
	m.mu.Lock()
	m.bySlug[strings.ToLower(t.Slug)] = t
	m.mu.Unlock()
}

func (m *memProvider) Delete(slug string) {
	m.mu.Lock()
	delete(m.bySlug, strings.ToLower(slug))
	m.mu.Unlock()
}

func (m *memProvider) ResolveTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.bySlug[slug]; ok {
		return t, nil
	}
	return Tenant{}, ErrTenantNotFound
}

func (m *memProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.bySlug {
		if t.ID == id {
			return t, nil
		}
	}
	return Tenant{}, ErrTenantNotFound
}

// ValidSlug reports whether s is a lowercase DNS label.
func ValidSlug(s string) bool {
	if s == "" || len(s) > 63 || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}
