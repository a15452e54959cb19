package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PostgresSink appends rows to mcp_sessions.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink { return &PostgresSink{pool: pool} }

// EnsureSchema creates the mcp_sessions table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mcp_sessions (
  id uuid PRIMARY KEY,
  tenant_id uuid NOT NULL,
  session_id text,
  transport text NOT NULL,
  tracking_id text,
  initialized_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS mcp_sessions_tenant_idx ON mcp_sessions(tenant_id, initialized_at DESC);
CREATE INDEX IF NOT EXISTS mcp_sessions_tracking_idx ON mcp_sessions(tracking_id) WHERE tracking_id IS NOT NULL;
`)
	return err
}

func (s *PostgresSink) WriteSessionInitialized(ctx context.Context, ev SessionInitialized) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	// app.tenant_id scopes the insert for row level security policies.
	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", ev.TenantID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO mcp_sessions(id, tenant_id, session_id, transport, tracking_id, initialized_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ID, ev.TenantID, ev.SessionID, ev.Transport, ev.TrackingID, ev.InitializedAt); err != nil {
		return fmt.Errorf("insert mcp_sessions: %w", err)
	}
	return tx.Commit(ctx)
}

// RedisStream is the stream key used by RedisSink.
const RedisStream = "tenantgate:sessions"

// RedisSink appends events to a capped redis stream for downstream consumers.
type RedisSink struct {
	rdb    *redis.Client
	maxLen int64
}

func NewRedisSink(rdb *redis.Client) *RedisSink { return &RedisSink{rdb: rdb, maxLen: 100_000} }

func (s *RedisSink) WriteSessionInitialized(ctx context.Context, ev SessionInitialized) error {
	tracking := ""
	if ev.TrackingID != nil {
		tracking = *ev.TrackingID
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: RedisStream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":             ev.ID,
			"tenant_id":      ev.TenantID,
			"session_id":     ev.SessionID,
			"transport":      ev.Transport,
			"tracking_id":    tracking,
			"initialized_at": ev.InitializedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}).Err()
}

// LogSink writes events to the structured log; used when no store is
// configured.
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(log *zap.SugaredLogger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) WriteSessionInitialized(_ context.Context, ev SessionInitialized) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.log.Infow("session initialized", "event", json.RawMessage(b))
	return nil
}
