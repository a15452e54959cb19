package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tenantgate/internal/events"
	"tenantgate/pkg/config"
	"tenantgate/pkg/db"
	"tenantgate/pkg/logger"
	"tenantgate/pkg/middleware"
	"tenantgate/pkg/oauthconfigs"
	"tenantgate/pkg/secrets"
	"tenantgate/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	seed, err := tenants.ReadSeed(cfg.TenantSeedFile, cfg.TenantSeedJSON)
	if err != nil {
		log.Fatalw("read tenant seed", "err", err)
	}
	box := secrets.NewBox(cfg.EncryptionKey)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var prov tenants.Provider
	var registry oauthconfigs.Registry
	if pool != nil {
		ctx := context.Background()
		if err := tenants.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("tenant schema", "err", err)
		}
		if err := oauthconfigs.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("oauth config schema", "err", err)
		}
		if err := tenants.SeedFromEnv(ctx, pool, seed, box); err != nil {
			log.Warnw("tenant seed", "err", err)
		}
		if err := oauthconfigs.SeedFromEnv(ctx, pool, seed); err != nil {
			log.Warnw("oauth config seed", "err", err)
		}
		prov = tenants.NewPostgresProvider(pool, log)
		registry = oauthconfigs.NewPostgresRegistry(pool)
	} else {
		mem, err := tenants.NewMemoryProviderFromSeed(log, seed, box)
		if err != nil {
			log.Fatalw("tenant seed", "err", err)
		}
		prov = mem
		if registry, err = oauthconfigs.NewMemoryRegistryFromSeed(seed); err != nil {
			log.Fatalw("oauth config seed", "err", err)
		}
	}

	sink, err := newSink(cfg, log, pool, rdb)
	if err != nil {
		log.Fatalw("telemetry sink", "err", err)
	}
	dispatcher := events.NewDispatcher(sink, log, cfg.EventQueueSize, cfg.EventWorkers)

	tracing, shutdownTracing := middleware.Tracing(cfg, log)
	handler, sessions := newRouter(deps{
		cfg:      cfg,
		log:      log,
		tenants:  prov,
		registry: registry,
		emitter:  dispatcher,
		tracing:  tracing,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.RunSweeper(sweepCtx, prov, cfg.SessionSweepInterval)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	go func() {
		log.Infow("gateway listening", "addr", cfg.HTTPAddr, "sink", cfg.TelemetrySink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	if err := dispatcher.Close(ctx); err != nil {
		log.Warnw("event queue not drained", "err", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warnw("tracing shutdown", "err", err)
	}
	if pool != nil {
		pool.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Infow("gateway stopped")
}

func newSink(cfg config.Config, log *zap.SugaredLogger, pool *pgxpool.Pool, rdb *redis.Client) (events.Sink, error) {
	switch cfg.TelemetrySink {
	case "postgres":
		if pool == nil {
			return nil, errors.New("TELEMETRY_SINK=postgres requires DATABASE_URL")
		}
		if err := events.EnsureSchema(context.Background(), pool); err != nil {
			return nil, err
		}
		return events.NewPostgresSink(pool), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("TELEMETRY_SINK=redis requires REDIS_URL")
		}
		return events.NewRedisSink(rdb), nil
	case "log", "":
		return events.NewLogSink(log), nil
	default:
		return nil, errors.New("unknown TELEMETRY_SINK " + cfg.TelemetrySink)
	}
}
