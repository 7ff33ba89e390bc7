package meeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/presence"
	"chatcall-backend/internal/presence/presencetest"
	apperrors "chatcall-backend/pkg/errors"
)

// MockMeetingRepository is a mock implementation of Repository
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	args := m.Called(ctx, meeting)
	return args.Error(0)
}

func (m *MockMeetingRepository) GetByID(ctx context.Context, meetingID uuid.UUID) (*domain.Meeting, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) AddParticipant(ctx context.Context, meetingID, userID uuid.UUID, joinedAt time.Time) (bool, error) {
	args := m.Called(ctx, meetingID, userID, joinedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingRepository) RemoveParticipant(ctx context.Context, meetingID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, meetingID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingRepository) Activate(ctx context.Context, meetingID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, meetingID, at)
	return args.Error(0)
}

func (m *MockMeetingRepository) End(ctx context.Context, meetingID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, meetingID, at)
	return args.Error(0)
}

func newMeeting(hostID uuid.UUID, status domain.MeetingStatus, others ...uuid.UUID) *domain.Meeting {
	m := &domain.Meeting{
		MeetingID:    uuid.New(),
		HostID:       hostID,
		Status:       status,
		Participants: []domain.MeetingParticipant{{UserID: hostID}},
	}
	for _, id := range others {
		m.Participants = append(m.Participants, domain.MeetingParticipant{UserID: id})
	}
	return m
}

func TestCreateMeeting(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	service := NewService(mockRepo, presence.NewMemoryRegistry(nil), nil)
	hostID := uuid.New()

	// Setup expectations
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Meeting")).Return(nil)

	// Execute
	meeting, err := service.CreateMeeting(context.Background(), &CreateMeetingInput{HostID: hostID})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingStatusScheduled, meeting.Status)
	require.Len(t, meeting.Participants, 1)
	assert.Equal(t, hostID, meeting.Participants[0].UserID)
	mockRepo.AssertExpectations(t)
}

func TestCreateMeeting_Validation(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	service := NewService(mockRepo, presence.NewMemoryRegistry(nil), nil)
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := service.CreateMeeting(context.Background(), &CreateMeetingInput{})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidArgument))

	_, err = service.CreateMeeting(context.Background(), &CreateMeetingInput{HostID: uuid.New(), StartTime: &start, EndTime: &end})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidArgument))

	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAddParticipant_FirstJoinStartsMeeting(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	registry := presence.NewMemoryRegistry(nil)
	service := NewService(mockRepo, registry, nil)
	hostID, guestID := uuid.New(), uuid.New()
	hostConn, guestConn := presencetest.NewConn(), presencetest.NewConn()
	registry.MarkOnline(hostID, hostConn)
	registry.MarkOnline(guestID, guestConn)
	meeting := newMeeting(hostID, domain.MeetingStatusScheduled)

	// Setup expectations
	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)
	mockRepo.On("Activate", mock.Anything, meeting.MeetingID, mock.Anything).Return(nil)
	mockRepo.On("AddParticipant", mock.Anything, meeting.MeetingID, guestID, mock.Anything).Return(true, nil)

	// Execute
	got, err := service.AddParticipant(context.Background(), meeting.MeetingID, guestID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingStatusActive, got.Status)
	assert.NotNil(t, got.ActualStartTime)
	assert.True(t, got.HasParticipant(guestID))
	joined := hostConn.Named(domain.EventParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, guestID, joined[0].Payload.(*domain.MeetingParticipantPayload).UserID)
	assert.Empty(t, guestConn.Named(domain.EventParticipantJoined))
	mockRepo.AssertExpectations(t)
}

func TestAddParticipant_Idempotent(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	registry := presence.NewMemoryRegistry(nil)
	service := NewService(mockRepo, registry, nil)
	hostID, guestID := uuid.New(), uuid.New()
	hostConn := presencetest.NewConn()
	registry.MarkOnline(hostID, hostConn)
	meeting := newMeeting(hostID, domain.MeetingStatusActive, guestID)

	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)

	got, err := service.AddParticipant(context.Background(), meeting.MeetingID, guestID)

	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)
	assert.Empty(t, hostConn.Events())
	mockRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddParticipant_EndedMeeting(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	service := NewService(mockRepo, presence.NewMemoryRegistry(nil), nil)
	meeting := newMeeting(uuid.New(), domain.MeetingStatusEnded)

	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)

	_, err := service.AddParticipant(context.Background(), meeting.MeetingID, uuid.New())

	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidArgument))
}

func TestAddParticipant_UnknownMeeting(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	service := NewService(mockRepo, presence.NewMemoryRegistry(nil), nil)
	meetingID := uuid.New()

	mockRepo.On("GetByID", mock.Anything, meetingID).Return(nil, apperrors.ErrNotFound)

	_, err := service.AddParticipant(context.Background(), meetingID, uuid.New())

	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestRemoveParticipant_NotifiesRemaining(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	registry := presence.NewMemoryRegistry(nil)
	service := NewService(mockRepo, registry, nil)
	hostID, a, b := uuid.New(), uuid.New(), uuid.New()
	hostConn, aConn, bConn := presencetest.NewConn(), presencetest.NewConn(), presencetest.NewConn()
	registry.MarkOnline(hostID, hostConn)
	registry.MarkOnline(a, aConn)
	registry.MarkOnline(b, bConn)
	meeting := newMeeting(hostID, domain.MeetingStatusActive, a, b)

	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)
	mockRepo.On("RemoveParticipant", mock.Anything, meeting.MeetingID, a).Return(true, nil)

	got, err := service.RemoveParticipant(context.Background(), meeting.MeetingID, a)

	require.NoError(t, err)
	assert.False(t, got.HasParticipant(a))
	assert.Len(t, got.Participants, 2)
	assert.Len(t, hostConn.Named(domain.EventParticipantLeft), 1)
	assert.Len(t, bConn.Named(domain.EventParticipantLeft), 1)
	assert.Empty(t, aConn.Events())
}

func TestRemoveParticipant_NotOnRoster(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	service := NewService(mockRepo, presence.NewMemoryRegistry(nil), nil)
	meeting := newMeeting(uuid.New(), domain.MeetingStatusActive)

	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)

	_, err := service.RemoveParticipant(context.Background(), meeting.MeetingID, uuid.New())

	require.NoError(t, err)
	mockRepo.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestEndMeeting(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	registry := presence.NewMemoryRegistry(nil)
	service := NewService(mockRepo, registry, nil)
	hostID, guestID := uuid.New(), uuid.New()
	hostConn, guestConn := presencetest.NewConn(), presencetest.NewConn()
	registry.MarkOnline(hostID, hostConn)
	registry.MarkOnline(guestID, guestConn)
	meeting := newMeeting(hostID, domain.MeetingStatusActive, guestID)

	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)
	mockRepo.On("End", mock.Anything, meeting.MeetingID, mock.Anything).Return(nil).Once()

	_, err := service.EndMeeting(context.Background(), meeting.MeetingID, guestID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeForbidden))

	got, err := service.EndMeeting(context.Background(), meeting.MeetingID, hostID)
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingStatusEnded, got.Status)
	assert.NotNil(t, got.ActualEndTime)
	assert.Len(t, hostConn.Named(domain.EventMeetingEnded), 1)
	assert.Len(t, guestConn.Named(domain.EventMeetingEnded), 1)

	// Ending again returns the stored meeting without notifying
	_, err = service.EndMeeting(context.Background(), meeting.MeetingID, hostID)
	require.NoError(t, err)
	assert.Len(t, guestConn.Named(domain.EventMeetingEnded), 1)
	mockRepo.AssertExpectations(t)
}

func TestEndMeeting_RepositoryFailure(t *testing.T) {
	mockRepo := new(MockMeetingRepository)
	service := NewService(mockRepo, presence.NewMemoryRegistry(nil), nil)
	hostID := uuid.New()
	meeting := newMeeting(hostID, domain.MeetingStatusActive)

	mockRepo.On("GetByID", mock.Anything, meeting.MeetingID).Return(meeting, nil)
	mockRepo.On("End", mock.Anything, meeting.MeetingID, mock.Anything).Return(errors.New("connection reset"))

	_, err := service.EndMeeting(context.Background(), meeting.MeetingID, hostID)

	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInternal))
}
