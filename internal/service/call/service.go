// Package call implements the call state machine:
// initiated -> (ringing) -> active -> ended, or initiated -> missed.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/presence"
	"chatcall-backend/internal/service/signaling"
	"chatcall-backend/pkg/constants"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/events"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
	"chatcall-backend/pkg/pagination"
)

// Repository is the persistence contract of the call state machine.
// Accept, MarkMissed and End are conditional on the current status and
// return apperrors.ErrConflict when the call already moved on.
type Repository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	Accept(ctx context.Context, callID uuid.UUID, startedAt time.Time) error
	MarkMissed(ctx context.Context, callID uuid.UUID, at time.Time) error
	End(ctx context.Context, callID uuid.UUID, endedAt time.Time, duration int) error
	Archive(ctx context.Context, callID, userID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, int64, error)
}

// Notifier sends the offline push fallback for calls
type Notifier interface {
	NotifyIncomingCall(ctx context.Context, call *domain.Call, offer *webrtc.SessionDescription) error
	NotifyMissedCall(ctx context.Context, call *domain.Call) error
}

// Service handles call business logic
type Service struct {
	callRepo    Repository
	presence    presence.Registry
	router      *signaling.Router
	notifier    Notifier
	events      *events.Emitter
	timers      *ringTimers
	ringTimeout time.Duration
	now         func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithRingTimeout overrides how long a call may ring before it is missed
func WithRingTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ringTimeout = d
		}
	}
}

// WithEmitter publishes lifecycle events through e
func WithEmitter(e *events.Emitter) Option {
	return func(s *Service) {
		s.events = e
	}
}

// NewService creates a new call service. notifier may be nil.
func NewService(callRepo Repository, registry presence.Registry, router *signaling.Router, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		callRepo:    callRepo,
		presence:    registry,
		router:      router,
		notifier:    notifier,
		timers:      newRingTimers(),
		ringTimeout: constants.CallRingTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCall persists a new call in the initiated state
func (s *Service) CreateCall(ctx context.Context, callID uuid.UUID, participants []uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	if callID == uuid.Nil {
		return nil, apperrors.MissingField("callId")
	}
	if len(participants) != 2 {
		return nil, apperrors.InvalidArgument("a call requires exactly two participants")
	}
	if participants[0] == uuid.Nil || participants[1] == uuid.Nil {
		return nil, apperrors.MissingField("participants")
	}
	if participants[0] == participants[1] {
		return nil, apperrors.InvalidArgument("call participants must be distinct")
	}
	if !callType.Valid() {
		return nil, apperrors.InvalidArgument("callType must be audio or video")
	}

	now := s.now().UTC()
	call := &domain.Call{
		CallID:       callID,
		Participants: []uuid.UUID{participants[0], participants[1]},
		CallType:     callType,
		Status:       domain.CallStatusInitiated,
		InitiatedAt:  now,
		ArchivedBy:   []uuid.UUID{},
		UpdatedAt:    now,
	}

	if err := s.callRepo.Create(ctx, call); err != nil {
		return nil, apperrors.Internal("failed to create call", err)
	}

	metrics.CallTransitionsTotal.WithLabelValues(string(callType), string(domain.CallStatusInitiated)).Inc()
	return call, nil
}

// InitiateCallInput contains call initiation data
type InitiateCallInput struct {
	CallerID uuid.UUID
	CalleeID uuid.UUID
	CallType domain.CallType
	Offer    webrtc.SessionDescription
}

// InitiateCallOutput is returned to the caller in the ack
type InitiateCallOutput struct {
	CallID    uuid.UUID `json:"callId"`
	Delivered bool      `json:"delivered"`
}

// CallRequestPayload is what the callee receives with callRequest
type CallRequestPayload struct {
	CallID   uuid.UUID                 `json:"callId"`
	CallerID uuid.UUID                 `json:"callerId"`
	CallType domain.CallType           `json:"callType"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

// InitiateCall creates the call, rings the callee (or pushes when offline) and
// arms the missed-call timer.
func (s *Service) InitiateCall(ctx context.Context, input *InitiateCallInput) (*InitiateCallOutput, error) {
	if input.CallerID == uuid.Nil {
		return nil, apperrors.MissingField("callerId")
	}
	if input.CalleeID == uuid.Nil {
		return nil, apperrors.MissingField("calleeId")
	}
	if err := signaling.ValidateDescription(input.Offer, webrtc.SDPTypeOffer); err != nil {
		return nil, err
	}

	call, err := s.CreateCall(ctx, uuid.New(), []uuid.UUID{input.CallerID, input.CalleeID}, input.CallType)
	if err != nil {
		return nil, err
	}

	s.armRingTimer(call)

	relay, err := s.router.Deliver(call, input.CallerID, signaling.KindOffer, domain.EventCallRequest, &CallRequestPayload{
		CallID:   call.CallID,
		CallerID: input.CallerID,
		CallType: call.CallType,
		Offer:    input.Offer,
	})
	if err != nil {
		return nil, err
	}

	if !relay.Delivered && s.notifier != nil {
		offer := input.Offer
		if err := s.notifier.NotifyIncomingCall(ctx, call, &offer); err != nil {
			logger.Warn("Incoming call push failed",
				zap.String("call_id", call.CallID.String()),
				zap.String("callee_id", input.CalleeID.String()),
				zap.Error(err))
		}
	}

	s.events.Emit(ctx, events.CallInitiated, call)

	logger.Info("Call initiated",
		zap.String("call_id", call.CallID.String()),
		zap.String("caller_id", input.CallerID.String()),
		zap.String("callee_id", input.CalleeID.String()),
		zap.String("call_type", string(call.CallType)),
		zap.Bool("callee_online", relay.Delivered))

	return &InitiateCallOutput{
		CallID:    call.CallID,
		Delivered: relay.Delivered,
	}, nil
}

// CallMissedPayload is what the caller receives with callMissed
type CallMissedPayload struct {
	CallID   uuid.UUID `json:"callId"`
	CalleeID uuid.UUID `json:"calleeId"`
}

func (s *Service) armRingTimer(call *domain.Call) {
	callID := call.CallID
	s.timers.arm(callID, s.ringTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
		defer cancel()
		s.expire(ctx, callID)
	})
}

// expire moves a still-initiated call to missed. The conditional update
// guarantees the transition happens once even if accept races the timer.
func (s *Service) expire(ctx context.Context, callID uuid.UUID) {
	err := s.callRepo.MarkMissed(ctx, callID, s.now().UTC())
	if errors.Is(err, apperrors.ErrConflict) {
		logger.Debug("Ring timer fired after call left initiated state",
			zap.String("call_id", callID.String()))
		return
	}
	if err != nil {
		logger.Error("Failed to mark call as missed",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}

	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		logger.Error("Failed to load missed call",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}

	metrics.CallTransitionsTotal.WithLabelValues(string(call.CallType), string(domain.CallStatusMissed)).Inc()

	calleeID, _ := call.OtherParticipant(call.CallerID())
	presence.Deliver(s.presence, call.CallerID(), domain.EventCallMissed, &CallMissedPayload{
		CallID:   callID,
		CalleeID: calleeID,
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyMissedCall(ctx, call); err != nil {
			logger.Warn("Missed call push failed",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	}

	s.events.Emit(ctx, events.CallMissed, call)

	logger.Info("Call missed",
		zap.String("call_id", callID.String()),
		zap.String("caller_id", call.CallerID().String()))
}

// AcceptCallInput contains the callee's answer
type AcceptCallInput struct {
	CallID   uuid.UUID
	CalleeID uuid.UUID
	Answer   webrtc.SessionDescription
}

// CallAcceptedPayload is what the caller receives with callAccepted
type CallAcceptedPayload struct {
	CallID uuid.UUID                 `json:"callId"`
	Answer webrtc.SessionDescription `json:"answer"`
}

// AcceptCall moves an initiated call to active and forwards the answer to the caller
func (s *Service) AcceptCall(ctx context.Context, input *AcceptCallInput) (*domain.Call, error) {
	if input.CallID == uuid.Nil {
		return nil, apperrors.MissingField("callId")
	}
	if input.CalleeID == uuid.Nil {
		return nil, apperrors.MissingField("calleeId")
	}

	call, err := s.callRepo.GetByID(ctx, input.CallID)
	if err != nil {
		return nil, apperrors.FromRepo("call", err)
	}
	if !call.HasParticipant(input.CalleeID) || call.CallerID() == input.CalleeID {
		return nil, apperrors.Forbidden("only the callee can accept this call")
	}
	if call.Status != domain.CallStatusInitiated {
		return nil, apperrors.InvalidArgument("call is no longer ringing")
	}
	if err := signaling.ValidateDescription(input.Answer, webrtc.SDPTypeAnswer); err != nil {
		return nil, err
	}

	// The ring timer stays armed until the transition is stored.
	startedAt := s.now().UTC()
	if err := s.callRepo.Accept(ctx, call.CallID, startedAt); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.timers.cancel(call.CallID)
			return nil, apperrors.InvalidArgument("call is no longer ringing")
		}
		return nil, apperrors.FromRepo("call", err)
	}
	s.timers.cancel(call.CallID)

	call.Status = domain.CallStatusActive
	call.StartedAt = &startedAt
	call.UpdatedAt = startedAt
	metrics.CallTransitionsTotal.WithLabelValues(string(call.CallType), string(domain.CallStatusActive)).Inc()

	if _, err := s.router.Deliver(call, input.CalleeID, signaling.KindAnswer, domain.EventCallAccepted, &CallAcceptedPayload{
		CallID: call.CallID,
		Answer: input.Answer,
	}); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.CallAccepted, call)

	logger.Info("Call accepted",
		zap.String("call_id", call.CallID.String()),
		zap.String("callee_id", input.CalleeID.String()))

	return call, nil
}

// RelayIceCandidate forwards a trickled ICE candidate to the other participant
func (s *Service) RelayIceCandidate(ctx context.Context, input *signaling.IceCandidateInput) (*signaling.RelayResult, error) {
	return s.router.RelayIceCandidate(ctx, input)
}

// CallEndedPayload is what every online participant receives with callEnded
type CallEndedPayload struct {
	CallID   uuid.UUID `json:"callId"`
	Duration int       `json:"duration"`
}

// EndCall terminates a call. Duration counts connected seconds since startedAt
// and is zero for a call that was never accepted.
func (s *Service) EndCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	if callID == uuid.Nil {
		return nil, apperrors.MissingField("callId")
	}

	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, apperrors.FromRepo("call", err)
	}

	if call.Status.Terminal() {
		s.timers.cancel(callID)
		return call, nil
	}

	endedAt := s.now().UTC()
	duration := 0
	if call.StartedAt != nil {
		duration = int(endedAt.Sub(*call.StartedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
	}

	if err := s.callRepo.End(ctx, callID, endedAt, duration); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the race against the ring timer; report the stored state.
			current, getErr := s.callRepo.GetByID(ctx, callID)
			if getErr != nil {
				return nil, apperrors.FromRepo("call", getErr)
			}
			return current, nil
		}
		return nil, apperrors.FromRepo("call", err)
	}
	s.timers.cancel(callID)

	call.Status = domain.CallStatusEnded
	call.EndedAt = &endedAt
	call.Duration = duration
	call.UpdatedAt = endedAt

	metrics.CallTransitionsTotal.WithLabelValues(string(call.CallType), string(domain.CallStatusEnded)).Inc()
	metrics.CallDurationSeconds.Observe(float64(duration))

	payload := &CallEndedPayload{CallID: callID, Duration: duration}
	for _, participantID := range call.Participants {
		presence.Deliver(s.presence, participantID, domain.EventCallEnded, payload)
	}

	s.events.Emit(ctx, events.CallEnded, call)

	logger.Info("Call ended",
		zap.String("call_id", callID.String()),
		zap.Int("duration", duration))

	return call, nil
}

// ArchiveCall hides the call from userID's history. Repeating it is a no-op.
func (s *Service) ArchiveCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	if callID == uuid.Nil {
		return nil, apperrors.MissingField("callId")
	}
	if userID == uuid.Nil {
		return nil, apperrors.MissingField("userId")
	}

	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, apperrors.FromRepo("call", err)
	}
	if !call.HasParticipant(userID) {
		return nil, apperrors.Forbidden("user is not a participant of this call")
	}
	if call.IsArchivedBy(userID) {
		return call, nil
	}

	if err := s.callRepo.Archive(ctx, callID, userID); err != nil {
		return nil, apperrors.FromRepo("call", err)
	}
	call.ArchivedBy = append(call.ArchivedBy, userID)

	s.events.Emit(ctx, events.CallArchived, map[string]uuid.UUID{"callId": callID, "userId": userID})

	return call, nil
}

// GetCallDetails retrieves a call by id
func (s *Service) GetCallDetails(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	if callID == uuid.Nil {
		return nil, apperrors.MissingField("callId")
	}
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, apperrors.FromRepo("call", err)
	}
	return call, nil
}

// ListCalls returns the user's non-archived calls, most recently updated first
func (s *Service) ListCalls(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.CallPage, error) {
	if userID == uuid.Nil {
		return nil, apperrors.MissingField("userId")
	}

	params := pagination.New(page, limit)
	calls, total, err := s.callRepo.ListByUser(ctx, userID, params.Limit, params.Offset())
	if err != nil {
		return nil, apperrors.Internal("failed to list calls", err)
	}
	if calls == nil {
		calls = []*domain.Call{}
	}

	return &domain.CallPage{
		Calls:       calls,
		TotalCalls:  total,
		CurrentPage: params.Page,
		TotalPages:  params.TotalPages(total),
	}, nil
}

// Shutdown stops every pending ring timer
func (s *Service) Shutdown() {
	if n := s.timers.stopAll(); n > 0 {
		logger.Info("Stopped pending ring timers", zap.Int("count", n))
	}
}
