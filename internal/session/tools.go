package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"tenantgate/pkg/secrets"
	"tenantgate/pkg/tenants"
)

const (
	upstreamTimeout = 15 * time.Second
	maxUpstreamBody = 4 << 20
)

// ToolExecutor runs one tool call for a tenant.
type ToolExecutor interface {
	Execute(ctx context.Context, t tenants.Tenant, tool tenants.Tool, args map[string]any) (*mcp.CallToolResult, error)
}

// HTTPToolExecutor forwards calls for tools with an Endpoint and answers the
// rest from the tool's static Response. Upstream problems are reported as
// tool errors, never as protocol errors.
type HTTPToolExecutor struct {
	client *http.Client
	box    *secrets.Box
	log    *zap.SugaredLogger
}

func NewHTTPToolExecutor(box *secrets.Box, log *zap.SugaredLogger) *HTTPToolExecutor {
	return &HTTPToolExecutor{client: &http.Client{Timeout: upstreamTimeout}, box: box, log: log}
}

func (e *HTTPToolExecutor) Execute(ctx context.Context, t tenants.Tenant, tool tenants.Tool, args map[string]any) (*mcp.CallToolResult, error) {
	if tool.Endpoint == "" {
		return textResult(tool.Response), nil
	}
	start := time.Now()
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return errorResult("invalid arguments"), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tool.Endpoint, bytes.NewReader(body))
	if err != nil {
		e.log.Warnw("tool upstream url invalid", "tenant", t.ID, "tool", tool.Name, "err", err)
		return errorResult("tool upstream misconfigured"), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key := e.apiKey(t, tool); key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warnw("tool upstream unreachable", "tenant", t.ID, "tool", tool.Name, "err", err)
		return errorResult("tool upstream unreachable"), nil
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return errorResult("tool upstream read failed"), nil
	}
	e.log.Debugw("tool call", "tenant", t.ID, "tool", tool.Name, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	text := responseText(resp.Header.Get("Content-Type"), raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorResult(fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, text)), nil
	}
	return textResult(text), nil
}

func (e *HTTPToolExecutor) apiKey(t tenants.Tenant, tool tenants.Tool) string {
	if tool.SecretRef == "" || len(t.SecretsEncrypted) == 0 {
		return ""
	}
	vals, err := e.box.Open(t.SecretsEncrypted)
	if err != nil {
		e.log.Warnw("tenant secrets unreadable", "tenant", t.ID, "err", err)
		return ""
	}
	return vals[tool.SecretRef]
}

// responseText compacts JSON bodies and returns anything else verbatim.
func responseText(contentType string, raw []byte) string {
	if strings.Contains(contentType, "application/json") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: msg}}}
}
