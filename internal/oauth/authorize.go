package oauth

import "net/http"

const authorizePath = "/auth/mcp/authorize"

// AuthorizeRedirect forwards the browser to the internal authorization
// endpoint. The query string is passed through byte for byte.
func AuthorizeRedirect(internalBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, AuthorizeTarget(internalBaseURL, r.URL.RawQuery), http.StatusFound)
	}
}

// AuthorizeTarget builds {base}/auth/mcp/authorize[?rawQuery].
func AuthorizeTarget(internalBaseURL, rawQuery string) string {
	target := internalBaseURL + authorizePath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}
