package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/pkg/constants"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// HandlerFunc handles one client event. The return value becomes the ack.
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error)

// inboundFrame is a client event
type inboundFrame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundFrame is a server event or an ack
type outboundFrame struct {
	Event string      `json:"event"`
	AckID string      `json:"ackId,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Ack is the response to a client event
type Ack struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *AckError   `json:"error,omitempty"`
}

// AckError describes a failed event
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Dispatcher routes client events to their handlers
type Dispatcher struct {
	handlers map[string]HandlerFunc
	tracer   trace.Tracer
	timeout  time.Duration
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		tracer:   otel.Tracer("chatcall-backend/internal/handler/ws"),
		timeout:  constants.DefaultTimeout,
	}
}

// Handle registers fn for event, replacing any previous handler
func (d *Dispatcher) Handle(event string, fn HandlerFunc) {
	d.handlers[event] = fn
}

// Dispatch handles one frame and sends the ack when the client asked for one.
// Failures are reported in the ack and never close the connection.
func (d *Dispatcher) Dispatch(c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || strings.TrimSpace(frame.Event) == "" {
		metrics.WebSocketEventsTotal.WithLabelValues("malformed", string(apperrors.ErrCodeInvalidArgument)).Inc()
		d.reply(c, "", nil, apperrors.InvalidArgument("malformed frame"))
		return
	}

	handler, ok := d.handlers[frame.Event]
	if !ok {
		metrics.WebSocketEventsTotal.WithLabelValues("unknown", string(apperrors.ErrCodeInvalidArgument)).Inc()
		d.reply(c, frame.AckID, nil, apperrors.InvalidArgument("unknown event: "+frame.Event))
		return
	}

	// In-flight work finishes even if the client disconnects; only the ack is lost.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ctx = logger.WithConnID(ctx, c.ID())
	ctx, span := d.tracer.Start(ctx, "ws."+frame.Event, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("ws.event", frame.Event),
		attribute.String("ws.conn_id", c.ID()),
	)
	defer span.End()

	start := time.Now()
	data, err := d.invoke(ctx, handler, c, frame)
	metrics.WebSocketEventDuration.WithLabelValues(frame.Event).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	metrics.WebSocketEventsTotal.WithLabelValues(frame.Event, result).Inc()

	d.reply(c, frame.AckID, data, err)
}

func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, c *Client, frame inboundFrame) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Panic in event handler",
				zap.String("event", frame.Event),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			data, err = nil, apperrors.Internal("internal error", fmt.Errorf("panic: %v", r))
		}
	}()
	return handler(ctx, c, frame.Data)
}

func (d *Dispatcher) reply(c *Client, ackID string, data interface{}, err error) {
	if err != nil {
		appErr := apperrors.GetAppError(err)
		if appErr.Code == apperrors.ErrCodeInternal {
			logger.Error("Event failed",
				zap.String("conn_id", c.ID()),
				zap.String("ack_id", ackID),
				zap.Error(err))
		}
		// Without an ackId only invalid frames are answered
		if ackID == "" && appErr.Code != apperrors.ErrCodeInvalidArgument {
			return
		}
		d.send(c, ackID, &Ack{
			Success: false,
			Error:   &AckError{Code: string(appErr.Code), Message: appErr.Message},
		})
		return
	}

	if ackID == "" {
		return
	}
	d.send(c, ackID, &Ack{Success: true, Data: data})
}

func (d *Dispatcher) send(c *Client, ackID string, ack *Ack) {
	frame, err := json.Marshal(&outboundFrame{Event: domain.EventAck, AckID: ackID, Data: ack})
	if err != nil {
		logger.Error("Failed to marshal ack", zap.String("ack_id", ackID), zap.Error(err))
		return
	}
	if err := c.enqueue(frame); err != nil {
		logger.Debug("Ack dropped", zap.String("conn_id", c.ID()), zap.Error(err))
	}
}

// decode unmarshals event data into v
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return apperrors.InvalidArgument("missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.InvalidArgument("invalid event data: " + err.Error())
	}
	return nil
}

// decodeOptional is decode for events whose data may be omitted
func decodeOptional(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return decode(data, v)
}
