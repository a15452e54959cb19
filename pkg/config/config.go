package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at process start and passed to every component.
type Config struct {
	Env      string
	HTTPAddr string

	// Base URL of the service that owns /auth/mcp/* (authorize, token, register).
	InternalBaseURL string

	// Tenant/config store and telemetry sink
	DatabaseURL   string
	RedisURL      string
	TelemetrySink string // postgres | redis | log

	// Dev seeding for the in-memory providers
	TenantSeedFile string
	TenantSeedJSON string

	// Symmetric key for tenant secrets (tool upstream API keys)
	EncryptionKey string

	EventQueueSize int
	EventWorkers   int

	MetadataFetchTimeout  time.Duration
	// Lets the metadata validator reach http and internal hosts (dev only).
	MetadataAllowInsecure bool
	ShutdownTimeout       time.Duration
	// How often session tables of removed tenants are dropped; 0 disables.
	SessionSweepInterval  time.Duration

	// OTLP traces endpoint; empty disables tracing.
	OTLPEndpoint string
	// Log a stack trace on double WriteHeader calls.
	DebugDoubleWrite bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                   env("TENANTGATE_ENV", "dev"),
		HTTPAddr:              env("TENANTGATE_HTTP_ADDR", ":8080"),
		InternalBaseURL:       strings.TrimRight(env("INTERNAL_BASE_URL", "http://localhost:3000"), "/"),
		DatabaseURL:           env("DATABASE_URL", ""),
		RedisURL:              env("REDIS_URL", ""),
		TelemetrySink:         env("TELEMETRY_SINK", ""),
		TenantSeedFile:        env("TENANT_SEED_FILE", ""),
		TenantSeedJSON:        env("TENANT_SEED_JSON", ""),
		EncryptionKey:         env("ENCRYPTION_KEY", ""),
		EventQueueSize:        envInt("EVENT_QUEUE_SIZE", 1024),
		EventWorkers:          envInt("EVENT_WORKERS", 2),
		MetadataFetchTimeout:  10 * time.Second,
		MetadataAllowInsecure: envBool("OAUTH_METADATA_ALLOW_INSECURE", false),
		ShutdownTimeout:       envDur("SHUTDOWN_TIMEOUT_SEC", 10) * time.Second,
		SessionSweepInterval:  envDur("SESSION_SWEEP_INTERVAL_SEC", 300) * time.Second,
		OTLPEndpoint:          env("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", env("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		DebugDoubleWrite:      envBool("DEBUG_DOUBLE_WRITE", false),
	}
	if cfg.TelemetrySink == "" {
		cfg.TelemetrySink = defaultSink(cfg)
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, using in-memory tenant provider")
	}
	return cfg
}

func defaultSink(cfg Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.RedisURL != "":
		return "redis"
	default:
		return "log"
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
