package session

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"tenantgate/internal/events"
	"tenantgate/pkg/tenants"
)

const (
	serverName    = "tenantgate"
	serverVersion = "1.0.0"
)

// ServerFactory builds one MCP server per session from a tenant snapshot.
// Servers share nothing with each other or with later tenant versions.
type ServerFactory struct {
	exec    ToolExecutor
	emitter events.Emitter
	log     *zap.SugaredLogger
}

func NewServerFactory(exec ToolExecutor, emitter events.Emitter, log *zap.SugaredLogger) *ServerFactory {
	return &ServerFactory{exec: exec, emitter: emitter, log: log}
}

// Build returns a server exposing t's tools. The route is captured so the
// initialized notification can be attributed to its transport and tracking id.
func (f *ServerFactory) Build(t tenants.Tenant, route Route) *mcp.Server {
	tracking := route.TrackingID
	transport := route.Transport
	tenantID := t.ID
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, &mcp.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			ev := events.SessionInitialized{
				TenantID:   tenantID,
				Transport:  transport,
				TrackingID: tracking,
			}
			if req != nil && req.Session != nil {
				ev.SessionID = req.Session.ID()
			}
			f.emitter.Emit(ev)
		},
	})
	for _, tool := range t.Tools {
		if err := f.addTool(srv, t, tool); err != nil {
			f.log.Warnw("tool skipped", "tenant", tenantID, "tool", tool.Name, "err", err)
		}
	}
	return srv
}

func (f *ServerFactory) addTool(srv *mcp.Server, t tenants.Tenant, tool tenants.Tool) (err error) {
	if tool.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	// AddTool panics on schemas it cannot use.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register tool: %v", rec)
		}
	}()
	def := &mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: objectSchema(tool.InputSchema),
	}
	mcp.AddTool(srv, def, func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		res, err := f.exec.Execute(ctx, t, tool, args)
		return res, nil, err
	})
	return nil
}

// objectSchema returns s with "type":"object", the only schema kind tools
// may declare. s itself is never modified.
func objectSchema(s map[string]any) map[string]any {
	out := make(map[string]any, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out["type"] = "object"
	return out
}
