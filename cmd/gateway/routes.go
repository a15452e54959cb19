package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tenantgate/internal/events"
	"tenantgate/internal/oauth"
	"tenantgate/internal/session"
	"tenantgate/pkg/config"
	"tenantgate/pkg/middleware"
	"tenantgate/pkg/oauthconfigs"
	"tenantgate/pkg/secrets"
	"tenantgate/pkg/tenants"
)

type deps struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	tenants  tenants.Provider
	registry oauthconfigs.Registry
	emitter  events.Emitter
	tracing  func(http.Handler) http.Handler
}

// newRouter wires every gateway route behind the shared middleware chain. The
// session router is returned so main can sweep it.
func newRouter(d deps) (http.Handler, *session.Router) {
	tracing := d.tracing
	if tracing == nil {
		tracing = func(next http.Handler) http.Handler { return next }
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(d.log))
	r.Use(middleware.DebugWriteHeader(d.cfg.DebugDoubleWrite, d.log))
	r.Use(tracing)
	r.Use(middleware.WithTenant(d.tenants, d.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	var validatorOpts []oauth.ValidatorOption
	if d.cfg.MetadataAllowInsecure {
		d.log.Warnw("oauth metadata validator allows http and internal targets")
		validatorOpts = append(validatorOpts, oauth.AllowInsecureTargets())
	}
	validator := oauth.NewMetadataValidator(d.log, d.cfg.MetadataFetchTimeout, validatorOpts...)
	oauth.RegisterRoutes(r, d.cfg, d.log, d.registry, validator)

	exec := session.NewHTTPToolExecutor(secrets.NewBox(d.cfg.EncryptionKey), d.log)
	factory := session.NewServerFactory(exec, d.emitter, d.log)
	sessions := session.NewRouter(factory, d.log)
	sessions.RegisterRoutes(r)
	return r, sessions
}
