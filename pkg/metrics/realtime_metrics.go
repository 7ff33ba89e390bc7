package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime metrics for presence, calls, messages and meetings
var (
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_websocket_connections",
		Help: "Current number of open WebSocket connections",
	})

	WebSocketConnectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_websocket_connection_total",
		Help: "Total number of WebSocket connection attempts",
	}, []string{"status"}) // accepted, rejected_capacity, upgrade_failed

	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_websocket_events_total",
		Help: "Total number of client events handled",
	}, []string{"event", "result"}) // result: ok or the error kind

	WebSocketEventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "realtime_websocket_event_duration_seconds",
		Help:    "Time taken to handle a client event",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"event"})

	WebSocketMessageDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_websocket_message_dropped_total",
		Help: "Total number of outbound frames dropped",
	}, []string{"reason"})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_online_users",
		Help: "Current number of users in the presence registry",
	})

	CallTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_transitions_total",
		Help: "Total number of call status transitions",
	}, []string{"call_type", "status"})

	CallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Connected duration of ended calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	CallPendingTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_pending_ring_timers",
		Help: "Current number of armed missed-call timers",
	})

	SignalingRelayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_relay_total",
		Help: "Total number of relayed signaling payloads",
	}, []string{"kind", "result"}) // result: delivered, recipient_offline

	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Total number of persisted chat messages",
	}, []string{"message_type", "receiver"}) // receiver: online, offline

	MessagesReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_replayed_total",
		Help: "Total number of undelivered messages replayed on reconnect",
	})

	MessagesAcknowledgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_acknowledged_total",
		Help: "Total number of delivered/seen acknowledgments",
	}, []string{"kind"}) // delivered, seen

	MeetingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_events_total",
		Help: "Total number of meeting lifecycle events",
	}, []string{"event"})

	PushNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_notifications_total",
		Help: "Total number of push notification sends",
	}, []string{"kind", "status"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_events_published_total",
		Help: "Total number of domain events published to the broker",
	}, []string{"routing_key", "status"})

	HTTPRequestTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_request_timeouts_total",
		Help: "Total number of REST requests that hit the request deadline",
	}, []string{"endpoint"})

	DependencyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dependency_requests_total",
		Help: "Total number of calls to external dependencies guarded by a circuit breaker",
	}, []string{"dependency", "operation", "status"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "State of a dependency circuit breaker (0=closed, 1=half_open, 2=open)",
	}, []string{"dependency"})

	RedisDegradedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
	})

	RedisHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Total number of Redis health checks",
	}, []string{"result"})
)
