// Package session routes tenant-scoped protocol traffic to MCP transports and
// reports completed handshakes.
package session

import (
	"net/url"
	"strings"
)

// Transport names accepted in the last path segment.
const (
	TransportSSE     = "sse"
	TransportMessage = "message"
	TransportMCP     = "mcp"
)

// Route is the result of splitting a session path.
type Route struct {
	TrackingID *string
	Transport  string
}

// ParseSegments maps path segments to a Route:
//
//	[t]       -> transport t, no tracking id
//	[id, t]   -> tracking id, transport t
//	otherwise -> no tracking id, no transport
//
// Longer paths are not interpreted; they fall through as an unknown
// transport.
func ParseSegments(segs []string) Route {
	switch len(segs) {
	case 1:
		return Route{Transport: segs[0]}
	case 2:
		id := segs[0]
		return Route{TrackingID: &id, Transport: segs[1]}
	default:
		return Route{}
	}
}

// SplitPath splits an escaped request path (URL.EscapedPath) on "/" and
// unescapes each segment, so an encoded slash stays inside its segment.
func SplitPath(escaped string) []string {
	escaped = strings.Trim(escaped, "/")
	if escaped == "" {
		return nil
	}
	segs := strings.Split(escaped, "/")
	for i, s := range segs {
		if u, err := url.PathUnescape(s); err == nil {
			segs[i] = u
		}
	}
	return segs
}

// Kind collapses transport aliases. "message" shares the SSE session table.
func (r Route) Kind() string {
	switch r.Transport {
	case TransportSSE, TransportMessage:
		return TransportSSE
	case TransportMCP:
		return TransportMCP
	default:
		return ""
	}
}

func (r Route) Tracking() string {
	if r.TrackingID == nil {
		return ""
	}
	return *r.TrackingID
}
