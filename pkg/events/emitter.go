package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// Routing keys
const (
	CallInitiated = "call.initiated"
	CallAccepted  = "call.accepted"
	CallEnded     = "call.ended"
	CallMissed    = "call.missed"
	CallArchived  = "call.archived"

	MessageSent      = "message.sent"
	MessageDelivered = "message.delivered"
	MessageSeen      = "message.seen"

	MeetingCreated = "meeting.created"
	MeetingJoined  = "meeting.joined"
	MeetingLeft    = "meeting.left"
	MeetingEnded   = "meeting.ended"
)

// Envelope wraps every published payload
type Envelope struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	OccurredAt    string      `json:"occurred_at"`
	Service       string      `json:"service"`
	Payload       interface{} `json:"payload"`
}

// Emitter publishes best effort: failures are logged and counted, never returned.
type Emitter struct {
	publisher Publisher
	service   string
	timeout   time.Duration
}

// NewEmitter creates an emitter. A nil publisher drops events.
func NewEmitter(publisher Publisher, service string) *Emitter {
	return &Emitter{
		publisher: publisher,
		service:   service,
		timeout:   3 * time.Second,
	}
}

// Emit publishes payload under routingKey
func (e *Emitter) Emit(ctx context.Context, routingKey string, payload interface{}) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     routingKey,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Payload:       payload,
	}

	// The request context may already be done when the event fires from a timer.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.publisher.Publish(pubCtx, routingKey, envelope); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(routingKey, "error").Inc()
		logger.Warn("Failed to publish domain event",
			zap.String("routing_key", routingKey),
			zap.Error(err))
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(routingKey, "ok").Inc()
}
