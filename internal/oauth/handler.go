package oauth

import (
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"tenantgate/pkg/config"
	"tenantgate/pkg/middleware"
	"tenantgate/pkg/oauthconfigs"
	"tenantgate/pkg/problems"
)

type pkceRequest struct {
	CodeVerifier        string `json:"code_verifier"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

type provider struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// RegisterRoutes mounts the authorization-flow endpoints. Every route expects
// the tenant already resolved by middleware.WithTenant.
func RegisterRoutes(r chi.Router, cfg config.Config, log *zap.SugaredLogger, registry oauthconfigs.Registry, validator *MetadataValidator) {
	disc := NewDiscovery(cfg.InternalBaseURL, registry, validator)

	r.Get("/authorize", AuthorizeRedirect(cfg.InternalBaseURL))
	r.Get("/oauth/jwks", JWKSHandler())
	r.Options("/oauth/jwks", JWKSPreflight)

	r.Get("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		md, err := disc.ServerMetadata(req.Context(), req.Host, t)
		if err != nil {
			log.Warnw("custom oauth config unavailable; serving defaults", "tenant", t.ID, "config", t.CustomOAuthConfigID, "err", err)
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		render.JSON(w, req, md)
	})
	r.Get("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		render.JSON(w, req, disc.ProtectedResource(req.Host))
	})

	// The /auth/mcp token service checks verifiers here. Metadata validation
	// has no HTTP surface: it fetches caller-chosen URLs.
	r.Post("/oauth/pkce/verify", func(w http.ResponseWriter, req *http.Request) {
		in, err := decodePKCE(req)
		if err != nil {
			log.Debugw("pkce request unreadable", "err", err)
		}
		ok := err == nil && VerifyPKCE(in.CodeVerifier, in.CodeChallenge, in.CodeChallengeMethod)
		if !ok {
			log.Infow("pkce verification failed", "tenant", middleware.TenantFrom(req.Context()).ID, "method", in.CodeChallengeMethod)
		}
		render.JSON(w, req, map[string]bool{"valid": ok})
	})
	r.Get("/oauth/providers", func(w http.ResponseWriter, req *http.Request) {
		t := middleware.TenantFrom(req.Context())
		out := []provider{}
		if registry != nil && t.OrganizationID != "" {
			configs, err := registry.ListByOrganization(req.Context(), t.OrganizationID)
			if err != nil {
				log.Errorw("list oauth configs failed", "org", t.OrganizationID, "err", err)
				problems.Internal(w, req)
				return
			}
			for _, c := range configs {
				out = append(out, provider{ID: c.ID, Name: c.Name, AuthorizationURL: c.AuthorizationURL})
			}
		}
		render.JSON(w, req, out)
	})
}

func decodePKCE(req *http.Request) (pkceRequest, error) {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if ct == "application/json" {
		var in pkceRequest
		err := render.DecodeJSON(req.Body, &in)
		return in, err
	}
	if err := req.ParseForm(); err != nil {
		return pkceRequest{}, err
	}
	return pkceRequest{
		CodeVerifier:        req.PostForm.Get("code_verifier"),
		CodeChallenge:       req.PostForm.Get("code_challenge"),
		CodeChallengeMethod: req.PostForm.Get("code_challenge_method"),
	}, nil
}
