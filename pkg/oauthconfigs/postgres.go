package oauthconfigs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenantgate/pkg/tenants"
)

type pgRegistry struct {
	dbPool *pgxpool.Pool
}

// NewPostgresRegistry constructs a PostgreSQL-backed Registry.
func NewPostgresRegistry(dbPool *pgxpool.Pool) Registry {
	return &pgRegistry{dbPool: dbPool}
}

// EnsureSchema creates the custom_oauth_configs table. The client_secret column
// is owned by the dashboard and never read here.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custom_oauth_configs (
  id uuid PRIMARY KEY,
  organization_id text NOT NULL,
  name text NOT NULL,
  metadata_url text NOT NULL,
  authorization_url text NOT NULL DEFAULT '',
  client_id text NOT NULL,
  client_secret text,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS custom_oauth_configs_org_idx ON custom_oauth_configs(organization_id);
`)
	return err
}

// SeedFromEnv upserts the seed document's oauth_configs. Client secrets are
// not part of the seed and keep their stored value.
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, raw []byte) error {
	configs, err := ParseSeed(raw)
	if err != nil {
		return err
	}
	for _, c := range configs {
		_, err := dbPool.Exec(ctx, `INSERT INTO custom_oauth_configs(id,organization_id,name,metadata_url,authorization_url,client_id)
		  VALUES ($1,$2,$3,$4,$5,$6)
		  ON CONFLICT (id) DO UPDATE SET organization_id=EXCLUDED.organization_id,name=EXCLUDED.name,
		    metadata_url=EXCLUDED.metadata_url,authorization_url=EXCLUDED.authorization_url,client_id=EXCLUDED.client_id`,
			c.ID, c.OrganizationID, c.Name, c.MetadataURL, c.AuthorizationURL, c.ClientID)
		if err != nil {
			return fmt.Errorf("seed oauth config %s: %w", c.ID, err)
		}
	}
	return nil
}

const configColumns = `id::text, organization_id, name, metadata_url, authorization_url, client_id, created_at`

func scanConfig(row pgx.Row) (CustomOAuthConfig, error) {
	var c CustomOAuthConfig
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.MetadataURL, &c.AuthorizationURL, &c.ClientID, &c.CreatedAt)
	return c, err
}

func (p *pgRegistry) Get(ctx context.Context, id string) (CustomOAuthConfig, error) {
	c, err := scanConfig(p.dbPool.QueryRow(ctx, `SELECT `+configColumns+` FROM custom_oauth_configs WHERE id::text=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CustomOAuthConfig{}, ErrNotFound
	}
	if err != nil {
		return CustomOAuthConfig{}, fmt.Errorf("load custom oauth config: %w", err)
	}
	return c, nil
}

func (p *pgRegistry) ListByOrganization(ctx context.Context, organizationID string) ([]CustomOAuthConfig, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT `+configColumns+` FROM custom_oauth_configs WHERE organization_id=$1 ORDER BY created_at DESC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list custom oauth configs: %w", err)
	}
	defer rows.Close()
	var out []CustomOAuthConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *pgRegistry) ForTenant(ctx context.Context, t tenants.Tenant) (*CustomOAuthConfig, error) {
	return forTenant(ctx, p, t)
}
