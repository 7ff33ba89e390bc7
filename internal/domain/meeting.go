package domain

import (
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the lifecycle state of a meeting
type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusActive    MeetingStatus = "active"
	MeetingStatusEnded     MeetingStatus = "ended"
)

// MeetingParticipant is one member of the roster, keyed by UserID
type MeetingParticipant struct {
	UserID   uuid.UUID `json:"userId" db:"user_id"`
	JoinedAt time.Time `json:"joinedAt" db:"joined_at"`
}

// Meeting is a multi-party session with a host.
// Maps to CockroachDB meetings and meeting_participants tables
type Meeting struct {
	MeetingID       uuid.UUID            `json:"meetingId" db:"meeting_id"`
	HostID          uuid.UUID            `json:"hostId" db:"host_id"`
	Participants    []MeetingParticipant `json:"participants"`
	Status          MeetingStatus        `json:"status" db:"status"`
	StartTime       *time.Time           `json:"startTime,omitempty" db:"start_time"`
	EndTime         *time.Time           `json:"endTime,omitempty" db:"end_time"`
	ActualStartTime *time.Time           `json:"actualStartTime,omitempty" db:"actual_start_time"`
	ActualEndTime   *time.Time           `json:"actualEndTime,omitempty" db:"actual_end_time"`
	CreatedAt       time.Time            `json:"createdAt" db:"created_at"`
}

// HasParticipant reports whether userID is currently on the roster
func (m *Meeting) HasParticipant(userID uuid.UUID) bool {
	for _, p := range m.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the roster user ids, optionally excluding one user
func (m *Meeting) ParticipantIDs(except uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.Participants))
	for _, p := range m.Participants {
		if p.UserID != except {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
