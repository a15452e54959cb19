// Package events carries "protocol session initialized" records from the
// session router to the telemetry sink without blocking protocol responses.
package events

import (
	"context"
	"time"
)

// SessionInitialized is emitted once per completed protocol handshake.
type SessionInitialized struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId,omitempty"`
	TenantID      string    `json:"tenantId"`
	Transport     string    `json:"transport"`
	TrackingID    *string   `json:"trackingId"`
	InitializedAt time.Time `json:"initializedAt"`
}

// Emitter accepts events. Emit must return immediately; delivery happens in
// the background and its failures never reach the caller.
type Emitter interface {
	Emit(ev SessionInitialized)
}

// Sink persists one event. Implementations may block on I/O.
type Sink interface {
	WriteSessionInitialized(ctx context.Context, ev SessionInitialized) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(SessionInitialized)

func (f EmitterFunc) Emit(ev SessionInitialized) { f(ev) }
