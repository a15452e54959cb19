package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsInitialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Name:      "sessions_initialized_total",
		Help:      "Protocol sessions that completed the initialize handshake.",
	}, []string{"transport"})

	sinkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Name:      "session_events_written_total",
		Help:      "Session-initialized events handed to the telemetry sink, by result.",
	}, []string{"result"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Name:      "session_events_dropped_total",
		Help:      "Session-initialized events dropped because the queue was full or closed.",
	})
)
