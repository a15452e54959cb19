package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"tenantgate/pkg/middleware"
	"tenantgate/pkg/problems"
	"tenantgate/pkg/tenants"
)

// transports holds the live session tables for one tenant. Session IDs are
// only valid on the tenant that created them.
type transports struct {
	sse        *mcp.SSEHandler
	streamable *mcp.StreamableHTTPHandler
}

// Router serves /{transport} and /{trackingId}/{transport}.
type Router struct {
	factory *ServerFactory
	log     *zap.SugaredLogger

	mu       sync.Mutex
	byTenant map[string]*transports
}

func NewRouter(factory *ServerFactory, log *zap.SugaredLogger) *Router {
	return &Router{factory: factory, log: log, byTenant: map[string]*transports{}}
}

// RegisterRoutes mounts the router as the catch-all so every path depth
// reaches ParseSegments.
func (rt *Router) RegisterRoutes(r chi.Router) {
	r.With(middleware.CORS("GET, POST, DELETE, OPTIONS", "Content-Type, Authorization, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")).
		Handle("/*", rt)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.TenantFromOK(r.Context())
	if !ok {
		problems.TenantNotFound(w, r)
		return
	}
	route := ParseSegments(SplitPath(r.URL.EscapedPath()))
	kind := route.Kind()
	if kind == "" {
		problems.Write(w, r, http.StatusNotFound, "Unknown transport")
		return
	}
	if !methodAllowed(kind, r.Method) {
		w.Header().Set("Allow", allowHeader(kind))
		problems.Write(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	h := rt.transportsFor(t.ID)
	if kind == TransportMCP {
		h.streamable.ServeHTTP(w, r)
		return
	}
	h.sse.ServeHTTP(w, r)
}

// transportsFor returns the tenant's session tables, creating them on first
// use. The getServer callbacks read the tenant resolved for the request that
// opens the session, so each session sees the configuration current at its
// handshake.
func (rt *Router) transportsFor(tenantID string) *transports {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if h, ok := rt.byTenant[tenantID]; ok {
		return h
	}
	h := &transports{
		sse:        mcp.NewSSEHandler(rt.serverFor, nil),
		streamable: mcp.NewStreamableHTTPHandler(rt.serverFor, nil),
	}
	rt.byTenant[tenantID] = h
	rt.log.Debugw("transport tables created", "tenant", tenantID)
	return h
}

func (rt *Router) serverFor(r *http.Request) *mcp.Server {
	t := middleware.TenantFrom(r.Context())
	route := ParseSegments(SplitPath(r.URL.EscapedPath()))
	rt.log.Infow("protocol session opening", "tenant", t.ID, "transport", route.Transport, "tracking", route.Tracking())
	return rt.factory.Build(t, route)
}

func methodAllowed(kind, method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost:
		return true
	case http.MethodDelete:
		return kind == TransportMCP
	}
	return false
}

func allowHeader(kind string) string {
	if kind == TransportMCP {
		return "GET, POST, DELETE"
	}
	return "GET, POST"
}

// Tenants reports how many tenants hold session tables.
func (rt *Router) Tenants() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.byTenant)
}

// Sweep drops the session tables of tenants the provider no longer knows.
// Sessions still open on a dropped table become unreachable; their clients
// get 404 on the next request and must reconnect. Lookup failures other than
// ErrTenantNotFound keep the table. Returns the number of tables dropped.
func (rt *Router) Sweep(ctx context.Context, prov tenants.Provider) int {
	rt.mu.Lock()
	ids := make([]string, 0, len(rt.byTenant))
	for id := range rt.byTenant {
		ids = append(ids, id)
	}
	rt.mu.Unlock()

	var gone []string
	for _, id := range ids {
		_, err := prov.ResolveTenantByID(ctx, id)
		if errors.Is(err, tenants.ErrTenantNotFound) {
			gone = append(gone, id)
		} else if err != nil {
			rt.log.Warnw("session sweep lookup failed", "tenant", id, "err", err)
		}
	}
	if len(gone) == 0 {
		return 0
	}
	rt.mu.Lock()
	for _, id := range gone {
		delete(rt.byTenant, id)
	}
	rt.mu.Unlock()
	rt.log.Infow("session tables dropped", "tenants", gone)
	return len(gone)
}

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval disables it.
func (rt *Router) RunSweeper(ctx context.Context, prov tenants.Provider, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Sweep(ctx, prov)
		}
	}
}
