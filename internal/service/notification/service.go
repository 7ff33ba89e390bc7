// Package notification turns call events into push notifications for
// users without a live connection.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/push"
)

// Push kinds, used as metric labels
const (
	KindIncomingCall = "incoming_call"
	KindMissedCall   = "missed_call"
)

// Sender delivers a notification to every device of a user
type Sender interface {
	SendToUser(ctx context.Context, userID uuid.UUID, kind string, n *push.Notification) (*push.SendResult, error)
}

// Service implements the call service's offline fallback
type Service struct {
	sender      Sender
	ringTimeout time.Duration
}

// NewService creates a notification service. ringTimeout bounds how long an
// incoming-call push stays deliverable.
func NewService(sender Sender, ringTimeout time.Duration) *Service {
	return &Service{
		sender:      sender,
		ringTimeout: ringTimeout,
	}
}

// NotifyIncomingCall pushes the call offer to the callee's devices
func (s *Service) NotifyIncomingCall(ctx context.Context, call *domain.Call, offer *webrtc.SessionDescription) error {
	data := map[string]string{
		"type":     KindIncomingCall,
		"callId":   call.CallID.String(),
		"callerId": call.CallerID().String(),
		"callType": string(call.CallType),
	}
	if offer != nil {
		raw, err := json.Marshal(offer)
		if err != nil {
			return fmt.Errorf("failed to encode offer: %w", err)
		}
		data["offer"] = string(raw)
	}

	n := &push.Notification{
		Title:       "Incoming Call",
		Body:        fmt.Sprintf("You have an incoming %s call", call.CallType),
		Data:        data,
		Priority:    push.PriorityHigh,
		Sound:       "default",
		Category:    "incoming_call",
		CollapseKey: "call-" + call.CallID.String(),
		TTL:         s.ringTimeout,
	}
	return s.send(ctx, call.CalleeID(), KindIncomingCall, n)
}

// NotifyMissedCall tells the callee they missed the call. It replaces the
// incoming-call notification through the shared collapse key.
func (s *Service) NotifyMissedCall(ctx context.Context, call *domain.Call) error {
	n := &push.Notification{
		Title: "Missed Call",
		Body:  fmt.Sprintf("Missed %s call", call.CallType),
		Data: map[string]string{
			"type":     KindMissedCall,
			"callId":   call.CallID.String(),
			"callerId": call.CallerID().String(),
			"callType": string(call.CallType),
		},
		Priority:    push.PriorityNormal,
		Category:    "missed_call",
		CollapseKey: "call-" + call.CallID.String(),
	}
	return s.send(ctx, call.CalleeID(), KindMissedCall, n)
}

func (s *Service) send(ctx context.Context, userID uuid.UUID, kind string, n *push.Notification) error {
	result, err := s.sender.SendToUser(ctx, userID, kind, n)
	if err != nil {
		return fmt.Errorf("failed to send %s push: %w", kind, err)
	}
	logger.Debug("Call push sent",
		zap.String("kind", kind),
		zap.String("user_id", userID.String()),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount))
	return nil
}
