package oauth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const minimalMetadata = `{"issuer":"https://as.example.com","authorization_endpoint":"https://as.example.com/authorize","token_endpoint":"https://as.example.com/token"}`

func metadataServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.Path + "|" + r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestNormalizeMetadataURL(t *testing.T) {
	const wk = "/.well-known/oauth-authorization-server"
	cases := []struct{ in, want string }{
		{"https://as.example.com", "https://as.example.com" + wk},
		{"https://as.example.com/", "https://as.example.com" + wk},
		{"https://as.example.com/tenant/", "https://as.example.com/tenant" + wk},
		{"https://as.example.com/.well-known/openid-configuration", "https://as.example.com/.well-known/openid-configuration"},
		{"https://as.example.com" + wk, "https://as.example.com" + wk},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeMetadataURL(tc.in), tc.in)
	}
}

func TestFetchAndValidateRoundTrip(t *testing.T) {
	srv, seen := metadataServer(t, http.StatusOK, minimalMetadata)
	v := NewMetadataValidator(zap.NewNop().Sugar(), 0, AllowInsecureTargets())

	md := v.FetchAndValidate(context.Background(), srv.URL+"/")
	require.NotNil(t, md)
	assert.Equal(t, "/.well-known/oauth-authorization-server|application/json", seen.Load())

	out, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, minimalMetadata, string(out))
}

func TestFetchAndValidateMissingAuthorizationEndpoint(t *testing.T) {
	srv, _ := metadataServer(t, http.StatusOK, `{"issuer":"https://as.example.com","token_endpoint":"https://as.example.com/token"}`)
	v := NewMetadataValidator(zap.NewNop().Sugar(), 0, AllowInsecureTargets())
	assert.Nil(t, v.FetchAndValidate(context.Background(), srv.URL))
}

func TestFetchAndValidateNon2xx(t *testing.T) {
	srv, _ := metadataServer(t, http.StatusNotFound, minimalMetadata)
	v := NewMetadataValidator(zap.NewNop().Sugar(), 0, AllowInsecureTargets())
	assert.Nil(t, v.FetchAndValidate(context.Background(), srv.URL))
}

func TestFetchAndValidateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	v := NewMetadataValidator(zap.NewNop().Sugar(), 50*time.Millisecond, AllowInsecureTargets())
	start := time.Now()
	assert.Nil(t, v.FetchAndValidate(context.Background(), srv.URL))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchAndValidateUnreachable(t *testing.T) {
	v := NewMetadataValidator(zap.NewNop().Sugar(), time.Second, AllowInsecureTargets())
	assert.Nil(t, v.FetchAndValidate(context.Background(), "http://127.0.0.1:1"))
}

func TestFetchAndValidateRefusesInternalHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(minimalMetadata))
	}))
	defer srv.Close()

	v := NewMetadataValidator(zap.NewNop().Sugar(), time.Second)
	assert.Nil(t, v.FetchAndValidate(context.Background(), srv.URL))
	assert.Zero(t, hits.Load())
}

func TestFetchAndValidateRefusesPlainHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(minimalMetadata))
	}))
	defer srv.Close()

	v := NewMetadataValidator(zap.NewNop().Sugar(), time.Second)
	assert.Nil(t, v.FetchAndValidate(context.Background(), srv.URL))
	assert.Nil(t, v.FetchAndValidate(context.Background(), "file:///etc/passwd"))
	assert.Zero(t, hits.Load())
}

func TestRedirectPolicy(t *testing.T) {
	v := NewMetadataValidator(zap.NewNop().Sugar(), time.Second)
	plain, err := http.NewRequest(http.MethodGet, "http://as.example.com/.well-known/oauth-authorization-server", nil)
	require.NoError(t, err)
	secure, err := http.NewRequest(http.MethodGet, "https://as.example.com/.well-known/oauth-authorization-server", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, v.client.CheckRedirect(plain, []*http.Request{secure}), ErrInsecureTarget)
	assert.NoError(t, v.client.CheckRedirect(secure, []*http.Request{secure}))
	assert.Error(t, v.client.CheckRedirect(secure, make([]*http.Request, maxRedirects)))
}

func TestRefuseInternal(t *testing.T) {
	tests := []struct {
		addr     string
		internal bool
	}{
		{"127.0.0.1:443", true},
		{"[::1]:443", true},
		{"10.1.2.3:443", true},
		{"172.16.0.9:443", true},
		{"192.168.1.1:443", true},
		{"169.254.169.254:80", true},
		{"100.64.0.1:443", true},
		{"0.0.0.0:443", true},
		{"[fe80::1]:443", true},
		{"[fd00::1]:443", true},
		{"224.0.0.1:443", true},
		{"93.184.216.34:443", false},
		{"[2606:4700::1111]:443", false},
	}
	for _, tc := range tests {
		t.Run(tc.addr, func(t *testing.T) {
			err := refuseInternal("tcp", tc.addr, nil)
			if tc.internal {
				assert.ErrorIs(t, err, ErrInternalTarget)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInternalIPMappedV4(t *testing.T) {
	assert.True(t, internalIP(net.ParseIP("::ffff:127.0.0.1")))
	assert.True(t, internalIP(net.ParseIP("::ffff:10.0.0.1")))
}

func TestParseMetadataFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"not json", `[1,2]`, "$"},
		{"relative issuer", `{"issuer":"/x","authorization_endpoint":"https://a/b","token_endpoint":"https://a/t"}`, "issuer"},
		{"numeric token endpoint", `{"issuer":"https://a","authorization_endpoint":"https://a/b","token_endpoint":5}`, "token_endpoint"},
		{"bad jwks uri", `{"issuer":"https://a","authorization_endpoint":"https://a/b","token_endpoint":"https://a/t","jwks_uri":"keys"}`, "jwks_uri"},
		{"scopes not list", `{"issuer":"https://a","authorization_endpoint":"https://a/b","token_endpoint":"https://a/t","scopes_supported":"read"}`, "scopes_supported"},
		{"grant type not string", `{"issuer":"https://a","authorization_endpoint":"https://a/b","token_endpoint":"https://a/t","grant_types_supported":["code",1]}`, "grant_types_supported[1]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			md, errs := ParseMetadata([]byte(tc.doc))
			assert.Nil(t, md)
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.field, errs[0].Field)
		})
	}
}

func TestParseMetadataOptionalFields(t *testing.T) {
	md, errs := ParseMetadata([]byte(`{
		"issuer":"https://a","authorization_endpoint":"https://a/authorize","token_endpoint":"https://a/token",
		"registration_endpoint":"https://a/register","scopes_supported":["read","write"],
		"code_challenge_methods_supported":["S256"],"extra":true}`))
	require.Empty(t, errs)
	require.NotNil(t, md)
	assert.Equal(t, []string{"read", "write"}, md.ScopesSupported)
	assert.Equal(t, "https://a/register", md.RegistrationEndpoint)
}
