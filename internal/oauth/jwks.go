package oauth

import (
	"encoding/json"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// The gateway issues opaque bearer tokens and holds no signing keys. The key
// set stays empty so discovery clients resolving jwks_uri still succeed.
func emptyKeySet() []byte {
	b, err := json.Marshal(jwk.NewSet())
	if err != nil {
		return []byte(`{"keys":[]}`)
	}
	return b
}

func setJWKSCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// JWKSHandler serves GET /oauth/jwks.
func JWKSHandler() http.HandlerFunc {
	body := emptyKeySet()
	return func(w http.ResponseWriter, _ *http.Request) {
		h := w.Header()
		h.Set("Content-Type", "application/json")
		h.Set("Cache-Control", "public, max-age=3600")
		setJWKSCORS(h)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// JWKSPreflight serves OPTIONS /oauth/jwks.
func JWKSPreflight(w http.ResponseWriter, _ *http.Request) {
	setJWKSCORS(w.Header())
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}
