package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	ChatEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Chat lifecycle events consumed, by event kind and outcome",
		},
		[]string{"service", "event", "outcome"},
	)

	BroadcastFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_frames_total",
			Help: "Frames fanned out to subscribers, by op",
		},
		[]string{"service", "op"},
	)

	HeartbeatTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_timeouts_total",
			Help: "Connections closed for missing a heartbeat response",
		},
		[]string{"service"},
	)
)
