package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/presence"
	"chatcall-backend/internal/service/call"
	"chatcall-backend/internal/service/chat"
	"chatcall-backend/internal/service/meeting"
	"chatcall-backend/internal/service/signaling"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
)

// CallService is the call state machine as used by the realtime channel
type CallService interface {
	InitiateCall(ctx context.Context, input *call.InitiateCallInput) (*call.InitiateCallOutput, error)
	AcceptCall(ctx context.Context, input *call.AcceptCallInput) (*domain.Call, error)
	RelayIceCandidate(ctx context.Context, input *signaling.IceCandidateInput) (*signaling.RelayResult, error)
	EndCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	ArchiveCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error)
	GetCallDetails(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
}

// SessionRelay forwards mid-call offers and answers
type SessionRelay interface {
	RelaySessionDescription(ctx context.Context, callID, senderID uuid.UUID, desc webrtc.SessionDescription) (*signaling.RelayResult, error)
}

// ChatService is the message delivery pipeline
type ChatService interface {
	SendMessage(ctx context.Context, input *chat.SendMessageInput) (*chat.SendMessageOutput, error)
	MarkDelivered(ctx context.Context, messageID, receiverID uuid.UUID) (*domain.Message, error)
	MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (*domain.Message, error)
	FetchPageAs(ctx context.Context, userID, chatID uuid.UUID, page, limit int) (*domain.MessagePage, error)
	OnReconnect(ctx context.Context, userID uuid.UUID) (int, error)
}

// MeetingService is the meeting coordinator
type MeetingService interface {
	CreateMeeting(ctx context.Context, input *meeting.CreateMeetingInput) (*domain.Meeting, error)
	AddParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error)
	RemoveParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error)
	EndMeeting(ctx context.Context, meetingID, hostID uuid.UUID) (*domain.Meeting, error)
}

// Handler binds the client events to the core services
type Handler struct {
	hub      *Hub
	registry presence.Registry
	calls    CallService
	relay    SessionRelay
	chats    ChatService
	meetings MeetingService
}

// NewHandler creates the realtime handler and registers its events on hub
func NewHandler(hub *Hub, registry presence.Registry, calls CallService, relay SessionRelay, chats ChatService, meetings MeetingService) *Handler {
	h := &Handler{
		hub:      hub,
		registry: registry,
		calls:    calls,
		relay:    relay,
		chats:    chats,
		meetings: meetings,
	}

	hub.Handle(domain.EventUserOnline, h.userOnline)
	hub.Handle(domain.EventInitiateCall, h.initiateCall)
	hub.Handle(domain.EventAcceptCall, h.acceptCall)
	hub.Handle(domain.EventSendIceCandidate, h.sendIceCandidate)
	hub.Handle(domain.EventCandidate, h.legacyCandidate)
	hub.Handle(domain.EventOffer, h.sessionDescription(webrtc.SDPTypeOffer))
	hub.Handle(domain.EventAnswer, h.sessionDescription(webrtc.SDPTypeAnswer))
	hub.Handle(domain.EventEndCall, h.endCall)
	hub.Handle(domain.EventArchiveCall, h.archiveCall)
	hub.Handle(domain.EventGetCallDetails, h.getCallDetails)
	hub.Handle(domain.EventSendMessage, h.sendMessage)
	hub.Handle(domain.EventMessageReceived, h.messageReceived)
	hub.Handle(domain.EventMessageSeen, h.messageSeen)
	hub.Handle(domain.EventGetAllChatMessages, h.getAllChatMessages)
	hub.Handle(domain.EventCreateMeeting, h.createMeeting)
	hub.Handle(domain.EventJoinMeeting, h.joinMeeting)
	hub.Handle(domain.EventLeaveMeeting, h.leaveMeeting)
	hub.Handle(domain.EventEndMeeting, h.endMeeting)

	return h
}

// UserOnlineResult is the userOnline ack
type UserOnlineResult struct {
	UserID   uuid.UUID `json:"userId"`
	Replayed int       `json:"replayed"`
}

func (h *Handler) userOnline(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := decodeOptional(data, &req); err != nil {
		return nil, err
	}

	userID, err := c.identify(req.UserID)
	if err != nil {
		return nil, err
	}

	c.setUserID(userID)
	if previous := h.registry.MarkOnline(userID, c); previous != nil {
		if old, ok := previous.(*Client); ok {
			old.Close()
		}
	}
	h.hub.BroadcastOnlineUsers()

	logger.FromContext(ctx).Info("User online", zap.String("user_id", userID.String()))

	replayed, err := h.chats.OnReconnect(ctx, userID)
	if err != nil {
		// Whatever was not replayed stays queued for the next reconnect
		logger.FromContext(ctx).Warn("Failed to replay undelivered messages",
			zap.String("user_id", userID.String()),
			zap.Int("replayed", replayed),
			zap.Error(err))
	}

	return &UserOnlineResult{UserID: userID, Replayed: replayed}, nil
}

func (h *Handler) initiateCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req struct {
		CallerID uuid.UUID                 `json:"callerId"`
		CalleeID uuid.UUID                 `json:"calleeId"`
		CallType domain.CallType           `json:"callType"`
		Offer    webrtc.SessionDescription `json:"offer"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	callerID, err := c.actor(req.CallerID)
	if err != nil {
		return nil, err
	}

	return h.calls.InitiateCall(ctx, &call.InitiateCallInput{
		CallerID: callerID,
		CalleeID: req.CalleeID,
		CallType: req.CallType,
		Offer:    req.Offer,
	})
}

func (h *Handler) acceptCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req struct {
		CallID   uuid.UUID                 `json:"callId"`
		CalleeID uuid.UUID                 `json:"calleeId"`
		Answer   webrtc.SessionDescription `json:"answer"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	calleeID, err := c.actor(req.CalleeID)
	if err != nil {
		return nil, err
	}

	return h.calls.AcceptCall(ctx, &call.AcceptCallInput{
		CallID:   req.CallID,
		CalleeID: calleeID,
		Answer:   req.Answer,
	})
}

type candidateRequest struct {
	CallID    uuid.UUID               `json:"callId"`
	SenderID  uuid.UUID               `json:"senderId"`
	CallerID  uuid.UUID               `json:"callerId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (h *Handler) sendIceCandidate(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	return h.relayCandidate(ctx, c, data, domain.EventIceCandidate)
}

// legacyCandidate keeps older clients working: they send candidate with
// callerId as the sender and expect candidate back
func (h *Handler) legacyCandidate(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	return h.relayCandidate(ctx, c, data, domain.EventCandidate)
}

func (h *Handler) relayCandidate(ctx context.Context, c *Client, data json.RawMessage, event string) (interface{}, error) {
	var req candidateRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	claimed := req.SenderID
	if claimed == uuid.Nil {
		claimed = req.CallerID
	}
	senderID, err := c.actor(claimed)
	if err != nil {
		return nil, err
	}

	return h.calls.RelayIceCandidate(ctx, &signaling.IceCandidateInput{
		CallID:    req.CallID,
		SenderID:  senderID,
		Candidate: req.Candidate,
		Event:     event,
	})
}

func (h *Handler) sessionDescription(want webrtc.SDPType) HandlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
		var req struct {
			CallID      uuid.UUID                 `json:"callId"`
			SenderID    uuid.UUID                 `json:"senderId"`
			Description webrtc.SessionDescription `json:"description"`
		}
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		senderID, err := c.actor(req.SenderID)
		if err != nil {
			return nil, err
		}
		if req.Description.Type == webrtc.SDPTypeUnknown {
			req.Description.Type = want
		}
		if err := signaling.ValidateDescription(req.Description, want); err != nil {
			return nil, err
		}

		return h.relay.RelaySessionDescription(ctx, req.CallID, senderID, req.Description)
	}
}

type callRequest struct {
	CallID uuid.UUID `json:"callId"`
	UserID uuid.UUID `json:"userId"`
}

// participantCall loads a call the acting user takes part in
func (h *Handler) participantCall(ctx context.Context, c *Client, req *callRequest) (*domain.Call, uuid.UUID, error) {
	userID, err := c.actor(req.UserID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if req.CallID == uuid.Nil {
		return nil, uuid.Nil, apperrors.MissingField("callId")
	}

	existing, err := h.calls.GetCallDetails(ctx, req.CallID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if !existing.HasParticipant(userID) {
		return nil, uuid.Nil, apperrors.Forbidden("user is not a participant of this call")
	}
	return existing, userID, nil
}

func (h *Handler) endCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req callRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if _, _, err := h.participantCall(ctx, c, &req); err != nil {
		return nil, err
	}

	return h.calls.EndCall(ctx, req.CallID)
}

func (h *Handler) archiveCall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req callRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	userID, err := c.actor(req.UserID)
	if err != nil {
		return nil, err
	}

	return h.calls.ArchiveCall(ctx, req.CallID, userID)
}

func (h *Handler) getCallDetails(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req callRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	existing, _, err := h.participantCall(ctx, c, &req)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (h *Handler) sendMessage(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var input chat.SendMessageInput
	if err := decode(data, &input); err != nil {
		return nil, err
	}
	senderID, err := c.actor(input.SenderID)
	if err != nil {
		return nil, err
	}
	input.SenderID = senderID

	return h.chats.SendMessage(ctx, &input)
}

type messageRequest struct {
	MessageID  uuid.UUID `json:"messageId"`
	ReceiverID uuid.UUID `json:"receiverId"`
}

func (h *Handler) messageReceived(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req messageRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	receiverID, err := c.actor(req.ReceiverID)
	if err != nil {
		return nil, err
	}

	return h.chats.MarkDelivered(ctx, req.MessageID, receiverID)
}

func (h *Handler) messageSeen(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req messageRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	receiverID, err := c.actor(req.ReceiverID)
	if err != nil {
		return nil, err
	}

	return h.chats.MarkSeen(ctx, req.MessageID, receiverID)
}

type chatMessagesRequest struct {
	ChatID uuid.UUID `json:"chatId"`
	Page   int       `json:"page"`
	Limit  int       `json:"limit"`
}

func (h *Handler) getAllChatMessages(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req chatMessagesRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.ChatID == uuid.Nil {
		return nil, apperrors.MissingField("chatId")
	}
	userID, err := c.actor(uuid.Nil)
	if err != nil {
		return nil, err
	}

	return h.chats.FetchPageAs(ctx, userID, req.ChatID, req.Page, req.Limit)
}

func (h *Handler) createMeeting(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req struct {
		HostID    uuid.UUID  `json:"hostId"`
		StartTime *time.Time `json:"startTime,omitempty"`
		EndTime   *time.Time `json:"endTime,omitempty"`
	}
	if err := decodeOptional(data, &req); err != nil {
		return nil, err
	}
	hostID, err := c.actor(req.HostID)
	if err != nil {
		return nil, err
	}

	return h.meetings.CreateMeeting(ctx, &meeting.CreateMeetingInput{
		HostID:    hostID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
}

type meetingRequest struct {
	MeetingID uuid.UUID `json:"meetingId"`
	UserID    uuid.UUID `json:"userId"`
	HostID    uuid.UUID `json:"hostId"`
}

func (h *Handler) joinMeeting(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req meetingRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	userID, err := c.actor(req.UserID)
	if err != nil {
		return nil, err
	}
	return h.meetings.AddParticipant(ctx, req.MeetingID, userID)
}

func (h *Handler) leaveMeeting(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req meetingRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	userID, err := c.actor(req.UserID)
	if err != nil {
		return nil, err
	}
	return h.meetings.RemoveParticipant(ctx, req.MeetingID, userID)
}

func (h *Handler) endMeeting(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var req meetingRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	hostID, err := c.actor(req.HostID)
	if err != nil {
		return nil, err
	}
	return h.meetings.EndMeeting(ctx, req.MeetingID, hostID)
}
