package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantgate/internal/events"
	"tenantgate/pkg/middleware"
	"tenantgate/pkg/secrets"
	"tenantgate/pkg/tenants"
)

type fixture struct {
	srv    *httptest.Server
	prov   tenants.MemoryProvider
	router *Router
	events chan events.SessionInitialized
}

// newFixture serves the router with the tenant picked from the X-Tenant
// header, since httptest hosts carry no subdomain.
func newFixture(t *testing.T, ts ...tenants.Tenant) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	f := &fixture{
		prov:   tenants.NewMemoryProvider(log, ts...),
		events: make(chan events.SessionInitialized, 16),
	}
	emit := events.EmitterFunc(func(ev events.SessionInitialized) { f.events <- ev })
	f.router = NewRouter(NewServerFactory(NewHTTPToolExecutor(secrets.NewBox(""), log), emit, log), log)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tn, err := f.prov.ResolveTenantBySlug(req.Context(), req.Header.Get("X-Tenant"))
			if err != nil {
				next.ServeHTTP(w, req)
				return
			}
			next.ServeHTTP(w, req.WithContext(middleware.ContextWithTenant(req.Context(), tn)))
		})
	})
	f.router.RegisterRoutes(r)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

type tenantHeader struct {
	slug string
	next http.RoundTripper
}

func (h tenantHeader) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Tenant", h.slug)
	return h.next.RoundTrip(req)
}

func clientFor(slug string) *http.Client {
	return &http.Client{Transport: tenantHeader{slug: slug, next: http.DefaultTransport}}
}

func acme() tenants.Tenant {
	return tenants.Tenant{
		ID:   "t-acme",
		Slug: "acme",
		Tools: []tenants.Tool{{
			Name:        "ping",
			Description: "returns pong",
			Response:    "pong",
		}},
	}
}

func (f *fixture) nextEvent(t *testing.T) events.SessionInitialized {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no session event")
		return events.SessionInitialized{}
	}
}

func TestStreamableSessionWithTracking(t *testing.T) {
	f := newFixture(t, acme())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   f.srv.URL + "/visitor-42/mcp",
		HTTPClient: clientFor("acme"),
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	ev := f.nextEvent(t)
	assert.Equal(t, "t-acme", ev.TenantID)
	assert.Equal(t, "mcp", ev.Transport)
	require.NotNil(t, ev.TrackingID)
	assert.Equal(t, "visitor-42", *ev.TrackingID)
	assert.NotEmpty(t, ev.SessionID)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", resultText(t, res))
}

func TestTrackingIDWithEncodedSlash(t *testing.T) {
	f := newFixture(t, acme())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   f.srv.URL + "/org%2Fvisitor/mcp",
		HTTPClient: clientFor("acme"),
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	ev := f.nextEvent(t)
	require.NotNil(t, ev.TrackingID)
	assert.Equal(t, "org/visitor", *ev.TrackingID)
}

func TestSSESession(t *testing.T) {
	f := newFixture(t, acme())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcp.SSEClientTransport{
		Endpoint:   f.srv.URL + "/sse",
		HTTPClient: clientFor("acme"),
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	ev := f.nextEvent(t)
	assert.Equal(t, "sse", ev.Transport)
	assert.Nil(t, ev.TrackingID)

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "ping", tools.Tools[0].Name)
}

func TestConfigChangeAppliesToNextSession(t *testing.T) {
	f := newFixture(t, acme())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	connect := func() *mcp.ClientSession {
		cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: f.srv.URL + "/mcp", HTTPClient: clientFor("acme")}, nil)
		require.NoError(t, err)
		f.nextEvent(t)
		return cs
	}

	first := connect()
	defer first.Close()

	updated := acme()
	updated.Tools = append(updated.Tools, tenants.Tool{Name: "version", Response: "2"})
	f.prov.Put(updated)

	second := connect()
	defer second.Close()

	before, err := first.ListTools(ctx, nil)
	require.NoError(t, err)
	after, err := second.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, before.Tools, 1)
	assert.Len(t, after.Tools, 2)
	assert.Equal(t, 1, f.router.Tenants())
}

func TestSessionsAreTenantScoped(t *testing.T) {
	other := tenants.Tenant{ID: "t-globex", Slug: "globex"}
	f := newFixture(t, acme(), other)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: f.srv.URL + "/mcp", HTTPClient: clientFor("acme")}, nil)
	require.NoError(t, err)
	defer cs.Close()
	f.nextEvent(t)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", cs.ID())
	resp, err := clientFor("globex").Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 2, f.router.Tenants())
}

type failingProvider struct{ tenants.Provider }

func (failingProvider) ResolveTenantByID(context.Context, string) (tenants.Tenant, error) {
	return tenants.Tenant{}, errors.New("db down")
}

func TestSweepDropsDeletedTenants(t *testing.T) {
	other := tenants.Tenant{ID: "t-globex", Slug: "globex"}
	f := newFixture(t, acme(), other)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	for _, slug := range []string{"acme", "globex"} {
		cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: f.srv.URL + "/mcp", HTTPClient: clientFor(slug)}, nil)
		require.NoError(t, err)
		f.nextEvent(t)
		defer cs.Close()
	}
	require.Equal(t, 2, f.router.Tenants())

	assert.Zero(t, f.router.Sweep(ctx, f.prov))
	assert.Zero(t, f.router.Sweep(ctx, failingProvider{f.prov}))
	assert.Equal(t, 2, f.router.Tenants())

	f.prov.Delete("globex")
	assert.Equal(t, 1, f.router.Sweep(ctx, f.prov))
	assert.Equal(t, 1, f.router.Tenants())

	// A returning tenant gets fresh tables.
	f.prov.Put(other)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: f.srv.URL + "/mcp", HTTPClient: clientFor("globex")}, nil)
	require.NoError(t, err)
	defer cs.Close()
	f.nextEvent(t)
	assert.Equal(t, 2, f.router.Tenants())
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	f := newFixture(t, acme())
	f.router.transportsFor("t-gone")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.router.RunSweeper(ctx, f.prov, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return f.router.Tenants() == 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRouterErrors(t *testing.T) {
	f := newFixture(t, acme())
	tests := []struct {
		name   string
		method string
		path   string
		slug   string
		status int
		body   string
	}{
		{"three segments", http.MethodGet, "/a/b/c", "acme", http.StatusNotFound, `{"error":"Unknown transport"}`},
		{"unknown transport", http.MethodGet, "/ws", "acme", http.StatusNotFound, `{"error":"Unknown transport"}`},
		{"root", http.MethodGet, "/", "acme", http.StatusNotFound, `{"error":"Unknown transport"}`},
		{"put on sse", http.MethodPut, "/sse", "acme", http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`},
		{"delete on sse", http.MethodDelete, "/abc/sse", "acme", http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`},
		{"encoded slash in tracking id", http.MethodPut, "/a%2Fb/sse", "acme", http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`},
		{"encoded slash in transport", http.MethodGet, "/a/mcp%2Fx", "acme", http.StatusNotFound, `{"error":"Unknown transport"}`},
		{"no tenant", http.MethodGet, "/sse", "nobody", http.StatusNotFound, `{"error":"Tenant not found"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, f.srv.URL+tc.path, nil)
			require.NoError(t, err)
			resp, err := clientFor(tc.slug).Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.JSONEq(t, tc.body, string(body))
		})
	}
}

func TestPreflight(t *testing.T) {
	f := newFixture(t, acme())
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/mcp", nil)
	require.NoError(t, err)
	resp, err := clientFor("acme").Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Mcp-Session-Id", resp.Header.Get("Access-Control-Expose-Headers"))
}
