// Package signaling relays WebRTC negotiation payloads between the two
// participants of a call. Payloads are delivered live or not at all.
package signaling

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/presence"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// Kind is the category of a relayed payload
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindEnd       Kind = "end"
)

// StatusRecipientOffline is reported in the ack when the other side has no live connection
const StatusRecipientOffline = "recipient offline"

// CallLookup is the read side of the call store the router needs
type CallLookup interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
}

// RelayResult is returned to the sender in the event ack
type RelayResult struct {
	CallID      uuid.UUID `json:"callId"`
	RecipientID uuid.UUID `json:"recipientId"`
	Delivered   bool      `json:"delivered"`
	Status      string    `json:"status"`
}

// Router resolves the other participant of a call and forwards payloads
type Router struct {
	calls    CallLookup
	presence presence.Registry
}

// NewRouter creates a new signaling router
func NewRouter(calls CallLookup, registry presence.Registry) *Router {
	return &Router{
		calls:    calls,
		presence: registry,
	}
}

// Deliver forwards payload from senderID to the other participant of an
// already loaded call. Offline recipients are reported, never queued.
func (r *Router) Deliver(call *domain.Call, senderID uuid.UUID, kind Kind, event string, payload interface{}) (*RelayResult, error) {
	recipientID, ok := call.OtherParticipant(senderID)
	if !ok {
		return nil, apperrors.Forbidden("sender is not a participant of this call")
	}

	result := &RelayResult{
		CallID:      call.CallID,
		RecipientID: recipientID,
		Status:      "delivered",
	}
	result.Delivered = presence.Deliver(r.presence, recipientID, event, payload)
	if !result.Delivered {
		result.Status = StatusRecipientOffline
		metrics.SignalingRelayTotal.WithLabelValues(string(kind), "recipient_offline").Inc()
		logger.Debug("Signaling recipient offline",
			zap.String("call_id", call.CallID.String()),
			zap.String("kind", string(kind)),
			zap.String("recipient_id", recipientID.String()))
		return result, nil
	}

	metrics.SignalingRelayTotal.WithLabelValues(string(kind), "delivered").Inc()
	return result, nil
}

// Relay loads the call and forwards payload to the participant who is not senderID
func (r *Router) Relay(ctx context.Context, callID, senderID uuid.UUID, kind Kind, event string, payload interface{}) (*RelayResult, error) {
	if callID == uuid.Nil {
		return nil, apperrors.MissingField("callId")
	}
	if senderID == uuid.Nil {
		return nil, apperrors.MissingField("senderId")
	}

	call, err := r.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, apperrors.FromRepo("call", err)
	}
	if call.Status.Terminal() {
		return nil, apperrors.InvalidArgument("call is no longer in progress")
	}

	return r.Deliver(call, senderID, kind, event, payload)
}

// IceCandidateInput is one trickled ICE candidate
type IceCandidateInput struct {
	CallID    uuid.UUID
	SenderID  uuid.UUID
	Candidate webrtc.ICECandidateInit
	// Event is the server event name; defaults to iceCandidate
	Event string
}

// IceCandidatePayload is what the recipient receives
type IceCandidatePayload struct {
	CallID    uuid.UUID               `json:"callId"`
	SenderID  uuid.UUID               `json:"senderId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// RelayIceCandidate forwards a candidate or reports the recipient offline
func (r *Router) RelayIceCandidate(ctx context.Context, input *IceCandidateInput) (*RelayResult, error) {
	if strings.TrimSpace(input.Candidate.Candidate) == "" && input.Candidate.SDPMid == nil {
		return nil, apperrors.MissingField("candidate")
	}
	event := input.Event
	if event == "" {
		event = domain.EventIceCandidate
	}

	return r.Relay(ctx, input.CallID, input.SenderID, KindCandidate, event, &IceCandidatePayload{
		CallID:    input.CallID,
		SenderID:  input.SenderID,
		Candidate: input.Candidate,
	})
}

// SessionDescriptionPayload carries a renegotiation offer or answer
type SessionDescriptionPayload struct {
	CallID      uuid.UUID                 `json:"callId"`
	SenderID    uuid.UUID                 `json:"senderId"`
	Description webrtc.SessionDescription `json:"description"`
}

// RelaySessionDescription forwards a mid-call offer or answer
func (r *Router) RelaySessionDescription(ctx context.Context, callID, senderID uuid.UUID, desc webrtc.SessionDescription) (*RelayResult, error) {
	var kind Kind
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		kind = KindOffer
	case webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer:
		kind = KindAnswer
	default:
		return nil, apperrors.InvalidArgument("description type must be offer or answer")
	}
	if err := ValidateDescription(desc, desc.Type); err != nil {
		return nil, err
	}

	return r.Relay(ctx, callID, senderID, kind, string(kind), &SessionDescriptionPayload{
		CallID:      callID,
		SenderID:    senderID,
		Description: desc,
	})
}

// ValidateDescription checks that desc is a parseable SDP of the expected type
func ValidateDescription(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if strings.TrimSpace(desc.SDP) == "" {
		return apperrors.MissingField("sdp")
	}
	if desc.Type != want && !(want == webrtc.SDPTypeAnswer && desc.Type == webrtc.SDPTypePranswer) {
		return apperrors.InvalidArgument("unexpected session description type: " + desc.Type.String())
	}
	if _, err := desc.Unmarshal(); err != nil {
		return apperrors.InvalidArgument("malformed session description")
	}
	return nil
}
