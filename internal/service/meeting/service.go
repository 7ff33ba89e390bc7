// Package meeting coordinates multi-party meetings: roster changes and their
// notifications. Meetings have no timeout and no offline fallback.
package meeting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/presence"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/events"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// Repository persists meetings and their roster.
// AddParticipant and RemoveParticipant report whether the roster changed.
// Activate and End return apperrors.ErrConflict when the status already moved on.
type Repository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error)
	AddParticipant(ctx context.Context, meetingID, userID uuid.UUID, joinedAt time.Time) (bool, error)
	RemoveParticipant(ctx context.Context, meetingID, userID uuid.UUID) (bool, error)
	Activate(ctx context.Context, meetingID uuid.UUID, at time.Time) error
	End(ctx context.Context, meetingID uuid.UUID, at time.Time) error
}

// Service handles meeting business logic
type Service struct {
	meetingRepo Repository
	presence    presence.Registry
	events      *events.Emitter
	now         func() time.Time
}

// NewService creates a new meeting service. emitter may be nil.
func NewService(meetingRepo Repository, registry presence.Registry, emitter *events.Emitter) *Service {
	return &Service{
		meetingRepo: meetingRepo,
		presence:    registry,
		events:      emitter,
		now:         time.Now,
	}
}

// CreateMeetingInput contains meeting data
type CreateMeetingInput struct {
	HostID    uuid.UUID  `json:"hostId"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// CreateMeeting schedules a meeting with the host as its first participant
func (s *Service) CreateMeeting(ctx context.Context, input *CreateMeetingInput) (*domain.Meeting, error) {
	if input.HostID == uuid.Nil {
		return nil, apperrors.MissingField("hostId")
	}
	if input.StartTime != nil && input.EndTime != nil && !input.EndTime.After(*input.StartTime) {
		return nil, apperrors.InvalidArgument("endTime must be after startTime")
	}

	now := s.now().UTC()
	meeting := &domain.Meeting{
		MeetingID: uuid.New(),
		HostID:    input.HostID,
		Participants: []domain.MeetingParticipant{
			{UserID: input.HostID, JoinedAt: now},
		},
		Status:    domain.MeetingStatusScheduled,
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
		CreatedAt: now,
	}

	if err := s.meetingRepo.Create(ctx, meeting); err != nil {
		return nil, apperrors.Internal("failed to create meeting", err)
	}

	metrics.MeetingEventsTotal.WithLabelValues("created").Inc()
	s.events.Emit(ctx, events.MeetingCreated, meeting)

	logger.Info("Meeting created",
		zap.String("meeting_id", meeting.MeetingID.String()),
		zap.String("host_id", input.HostID.String()))

	return meeting, nil
}

// GetMeeting retrieves a meeting with its roster
func (s *Service) GetMeeting(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error) {
	if meetingID == uuid.Nil {
		return nil, apperrors.MissingField("meetingId")
	}
	meeting, err := s.meetingRepo.GetByID(ctx, meetingID)
	if err != nil {
		return nil, apperrors.FromRepo("meeting", err)
	}
	return meeting, nil
}

// AddParticipant puts userID on the roster. Joining twice is a no-op.
// The first join of a scheduled meeting starts it.
func (s *Service) AddParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error) {
	if userID == uuid.Nil {
		return nil, apperrors.MissingField("userId")
	}

	meeting, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.Status == domain.MeetingStatusEnded {
		return nil, apperrors.InvalidArgument("meeting has ended")
	}

	now := s.now().UTC()
	if meeting.Status == domain.MeetingStatusScheduled {
		if err := s.meetingRepo.Activate(ctx, meetingID, now); err != nil && !errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.FromRepo("meeting", err)
		}
		meeting.Status = domain.MeetingStatusActive
		meeting.ActualStartTime = &now
	}

	if meeting.HasParticipant(userID) {
		return meeting, nil
	}

	added, err := s.meetingRepo.AddParticipant(ctx, meetingID, userID, now)
	if err != nil {
		return nil, apperrors.FromRepo("meeting", err)
	}
	if !added {
		// Joined concurrently through another connection
		return s.GetMeeting(ctx, meetingID)
	}

	payload := &domain.MeetingParticipantPayload{MeetingID: meetingID, UserID: userID}
	s.broadcast(meeting.ParticipantIDs(userID), domain.EventParticipantJoined, payload)
	meeting.Participants = append(meeting.Participants, domain.MeetingParticipant{UserID: userID, JoinedAt: now})

	metrics.MeetingEventsTotal.WithLabelValues("joined").Inc()
	s.events.Emit(ctx, events.MeetingJoined, payload)

	return meeting, nil
}

// RemoveParticipant takes userID off the roster and tells the others
func (s *Service) RemoveParticipant(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error) {
	if userID == uuid.Nil {
		return nil, apperrors.MissingField("userId")
	}

	meeting, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !meeting.HasParticipant(userID) {
		return meeting, nil
	}

	removed, err := s.meetingRepo.RemoveParticipant(ctx, meetingID, userID)
	if err != nil {
		return nil, apperrors.FromRepo("meeting", err)
	}

	remaining := meeting.Participants[:0]
	for _, p := range meeting.Participants {
		if p.UserID != userID {
			remaining = append(remaining, p)
		}
	}
	meeting.Participants = remaining

	if removed {
		payload := &domain.MeetingParticipantPayload{MeetingID: meetingID, UserID: userID}
		s.broadcast(meeting.ParticipantIDs(uuid.Nil), domain.EventParticipantLeft, payload)
		metrics.MeetingEventsTotal.WithLabelValues("left").Inc()
		s.events.Emit(ctx, events.MeetingLeft, payload)
	}

	return meeting, nil
}

// EndMeeting closes the meeting for everyone. Only the host may end it.
func (s *Service) EndMeeting(ctx context.Context, meetingID, hostID uuid.UUID) (*domain.Meeting, error) {
	meeting, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if meeting.HostID != hostID {
		return nil, apperrors.Forbidden("only the host can end this meeting")
	}
	if meeting.Status == domain.MeetingStatusEnded {
		return meeting, nil
	}

	endedAt := s.now().UTC()
	if err := s.meetingRepo.End(ctx, meetingID, endedAt); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return s.GetMeeting(ctx, meetingID)
		}
		return nil, apperrors.FromRepo("meeting", err)
	}
	meeting.Status = domain.MeetingStatusEnded
	meeting.ActualEndTime = &endedAt

	payload := &domain.MeetingEndedPayload{MeetingID: meetingID}
	s.broadcast(meeting.ParticipantIDs(uuid.Nil), domain.EventMeetingEnded, payload)

	metrics.MeetingEventsTotal.WithLabelValues("ended").Inc()
	s.events.Emit(ctx, events.MeetingEnded, meeting)

	logger.Info("Meeting ended",
		zap.String("meeting_id", meetingID.String()),
		zap.Int("participants", len(meeting.Participants)))

	return meeting, nil
}

func (s *Service) broadcast(userIDs []uuid.UUID, event string, payload interface{}) {
	for _, id := range userIDs {
		presence.Deliver(s.presence, id, event, payload)
	}
}
