package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	wellKnownMarker = "/.well-known/"
	wellKnownAS     = "/.well-known/oauth-authorization-server"
	maxMetadataBody = 1 << 20
	maxRedirects    = 5
	// DefaultFetchTimeout bounds every metadata fetch.
	DefaultFetchTimeout = 10 * time.Second
)

var metadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tenantgate_oauth_metadata_fetch_total",
	Help: "Authorization server metadata fetches by result.",
}, []string{"result"})

// Metadata is an RFC 8414 authorization server metadata document. Only the
// fields the gateway understands are kept.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri,omitempty"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

// FieldError names one invalid metadata field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string { return e.Field + ": " + e.Reason }

var (
	// ErrInsecureTarget is returned for non-https metadata URLs.
	ErrInsecureTarget = errors.New("metadata url must use https")
	// ErrInternalTarget is returned when a metadata host resolves to a
	// loopback, private, link-local or otherwise internal address.
	ErrInternalTarget = errors.New("metadata host resolves to an internal address")
)

// MetadataValidator fetches remote authorization server metadata. It is safe
// for concurrent use and keeps no state between calls.
type MetadataValidator struct {
	client   *http.Client
	timeout  time.Duration
	insecure bool
	log      *zap.SugaredLogger
}

type ValidatorOption func(*MetadataValidator)

// AllowInsecureTargets permits http URLs and internal addresses. For local
// development and tests.
func AllowInsecureTargets() ValidatorOption {
	return func(v *MetadataValidator) { v.insecure = true }
}

// NewMetadataValidator returns a validator. A zero timeout means
// DefaultFetchTimeout. By default only https URLs are fetched and the
// connection is refused when the resolved address is internal, which also
// covers redirects and DNS answers that change between lookups.
func NewMetadataValidator(log *zap.SugaredLogger, timeout time.Duration, opts ...ValidatorOption) *MetadataValidator {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	v := &MetadataValidator{timeout: timeout, log: log}
	for _, opt := range opts {
		opt(v)
	}
	dialer := &net.Dialer{Timeout: timeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !v.insecure {
		dialer.Control = refuseInternal
		// A proxy would be dialed instead of the target.
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext
	v.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return v.checkTarget(req.URL)
		},
	}
	return v
}

func (v *MetadataValidator) checkTarget(u *url.URL) error {
	if v.insecure {
		return nil
	}
	if u.Scheme != "https" {
		return ErrInsecureTarget
	}
	return nil
}

func refuseInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || internalIP(ip) {
		return fmt.Errorf("%w: %s", ErrInternalTarget, host)
	}
	return nil
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func internalIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		sharedAddressSpace.Contains(ip)
}

// NormalizeMetadataURL appends the RFC 8414 well-known path unless the URL
// already points into /.well-known/.
func NormalizeMetadataURL(raw string) string {
	if strings.Contains(raw, wellKnownMarker) {
		return raw
	}
	return strings.TrimSuffix(raw, "/") + wellKnownAS
}

// FetchAndValidate returns the validated document, or nil on any fetch,
// decode or validation failure. Failures are logged, never returned.
func (v *MetadataValidator) FetchAndValidate(ctx context.Context, metadataURL string) *Metadata {
	target := NormalizeMetadataURL(metadataURL)
	u, err := url.Parse(target)
	if err == nil {
		err = v.checkTarget(u)
	}
	if err != nil {
		metadataFetches.WithLabelValues("rejected").Inc()
		v.log.Warnw("oauth metadata url rejected", "url", target, "err", err)
		return nil
	}
	raw, err := v.fetch(ctx, target)
	if err != nil {
		metadataFetches.WithLabelValues("fetch_failed").Inc()
		v.log.Warnw("oauth metadata fetch failed", "url", target, "err", err)
		return nil
	}
	md, errs := ParseMetadata(raw)
	if len(errs) > 0 {
		metadataFetches.WithLabelValues("invalid").Inc()
		fields := make([]string, 0, len(errs))
		for _, e := range errs {
			fields = append(fields, e.String())
		}
		v.log.Warnw("oauth metadata invalid", "url", target, "errors", fields)
		return nil
	}
	metadataFetches.WithLabelValues("ok").Inc()
	return md
}

func (v *MetadataValidator) fetch(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMetadataBody))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxMetadataBody {
		return nil, fmt.Errorf("metadata body exceeds %d bytes", maxMetadataBody)
	}
	return body, nil
}

// ParseMetadata decodes and validates a metadata document. The document is
// returned only when the error list is empty.
func ParseMetadata(raw []byte) (*Metadata, []FieldError) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, []FieldError{{Field: "$", Reason: "not a JSON object"}}
	}
	var errs []FieldError
	for _, f := range []string{"issuer", "authorization_endpoint", "token_endpoint"} {
		errs = append(errs, checkURL(doc, f, true)...)
	}
	for _, f := range []string{"jwks_uri", "userinfo_endpoint", "registration_endpoint"} {
		errs = append(errs, checkURL(doc, f, false)...)
	}
	for _, f := range []string{
		"scopes_supported",
		"response_types_supported",
		"grant_types_supported",
		"token_endpoint_auth_methods_supported",
		"code_challenge_methods_supported",
	} {
		errs = append(errs, checkStringList(doc, f)...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, []FieldError{{Field: "$", Reason: err.Error()}}
	}
	return &md, nil
}

func checkURL(doc map[string]any, field string, required bool) []FieldError {
	v, ok := doc[field]
	if !ok || v == nil {
		if required {
			return []FieldError{{Field: field, Reason: "required"}}
		}
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return []FieldError{{Field: field, Reason: "must be a string"}}
	}
	if !absoluteURL(s) {
		return []FieldError{{Field: field, Reason: "must be an absolute URL"}}
	}
	return nil
}

func checkStringList(doc map[string]any, field string) []FieldError {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return []FieldError{{Field: field, Reason: "must be an array"}}
	}
	for i, item := range list {
		if _, ok := item.(string); !ok {
			return []FieldError{{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "must be a string"}}
		}
	}
	return nil
}

func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
