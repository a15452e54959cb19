package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tenantgate/pkg/secrets"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool      // Connection pool to PostgreSQL
	log    *zap.SugaredLogger // Logger for diagnostic output
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  slug text UNIQUE NOT NULL CHECK (slug ~ '^[a-z0-9]([a-z0-9-]*[a-z0-9])?$'),
  display_name text NOT NULL DEFAULT '',
  organization_id text NOT NULL DEFAULT '',
  custom_oauth_config_id uuid,
  secrets_encrypted bytea,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS tenant_tools (
  tenant_id uuid NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  name text NOT NULL,
  description text NOT NULL DEFAULT '',
  input_schema jsonb,
  endpoint text,
  response text,
  secret_ref text,
  position int NOT NULL DEFAULT 0,
  PRIMARY KEY (tenant_id, name)
);
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS custom_oauth_config_id uuid;
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS secrets_encrypted bytea;
`)
	return err
}

// SeedFromEnv ingests initial tenants and their tools from a YAML/JSON seed
// (TENANT_SEED_FILE or TENANT_SEED_JSON). Existing rows are updated.
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, raw []byte, box *secrets.Box) error {
	if len(raw) == 0 {
		return nil
	}
	seed, err := ParseSeed(raw)
	if err != nil {
		return err
	}
	for _, t := range seed.Tenants {
		if !ValidSlug(t.Slug) {
			return fmt.Errorf("tenant %q: invalid slug %q", t.ID, t.Slug)
		}
		if err := sealSecrets(&t, box); err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.Slug, err)
		}
		if err := upsertTenant(ctx, dbPool, t); err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.Slug, err)
		}
	}
	return nil
}

func upsertTenant(ctx context.Context, dbPool *pgxpool.Pool, t Tenant) error {
	tx, err := dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `INSERT INTO tenants(id,slug,display_name,organization_id,custom_oauth_config_id,secrets_encrypted)
	  VALUES ($1,$2,$3,$4,$5,$6)
	  ON CONFLICT (id) DO UPDATE SET slug=EXCLUDED.slug,display_name=EXCLUDED.display_name,
	    organization_id=EXCLUDED.organization_id,custom_oauth_config_id=EXCLUDED.custom_oauth_config_id,
	    secrets_encrypted=COALESCE(EXCLUDED.secrets_encrypted,tenants.secrets_encrypted),updated_at=NOW()`,
		t.ID, t.Slug, t.DisplayName, t.OrganizationID, nullIfEmpty(t.CustomOAuthConfigID), t.SecretsEncrypted)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tenant_tools WHERE tenant_id=$1`, t.ID); err != nil {
		return err
	}
	for i, tool := range t.Tools {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tenant_tools(tenant_id,name,description,input_schema,endpoint,response,secret_ref,position)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			t.ID, tool.Name, tool.Description, schema, nullIfEmpty(tool.Endpoint), nullIfEmpty(tool.Response), nullIfEmpty(tool.SecretRef), i); err != nil {
			return fmt.Errorf("tool %s: %w", tool.Name, err)
		}
	}
	return tx.Commit(ctx)
}

const tenantColumns = `id::text,slug,display_name,organization_id,COALESCE(custom_oauth_config_id::text,''),secrets_encrypted`

// ResolveTenantBySlug fetches a tenant and its tool set using the slug.
func (p *pgProvider) ResolveTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	return p.resolve(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug=$1`, slug)
}

// ResolveTenantByID fetches a tenant by its UUID.
func (p *pgProvider) ResolveTenantByID(ctx context.Context, id string) (Tenant, error) {
	return p.resolve(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id::text=$1`, id)
}

func (p *pgProvider) resolve(ctx context.Context, query, arg string) (Tenant, error) {
	var t Tenant
	err := p.dbPool.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Slug, &t.DisplayName, &t.OrganizationID, &t.CustomOAuthConfigID, &t.SecretsEncrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("load tenant: %w", err)
	}
	tools, err := p.loadTools(ctx, t.ID)
	if err != nil {
		return Tenant{}, err
	}
	t.Tools = tools
	return t, nil
}

func (p *pgProvider) loadTools(ctx context.Context, tenantID string) ([]Tool, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT name, description, input_schema, COALESCE(endpoint,''), COALESCE(response,''), COALESCE(secret_ref,'')
		FROM tenant_tools WHERE tenant_id=$1 ORDER BY position, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}
	defer rows.Close()
	var tools []Tool
	for rows.Next() {
		var tool Tool
		var schemaRaw []byte
		if err := rows.Scan(&tool.Name, &tool.Description, &schemaRaw, &tool.Endpoint, &tool.Response, &tool.SecretRef); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		if len(schemaRaw) > 0 {
			if err := json.Unmarshal(schemaRaw, &tool.InputSchema); err != nil {
				p.log.Warnw("tool input schema unreadable", "tenant", tenantID, "tool", tool.Name, "err", err)
			}
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
