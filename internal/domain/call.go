package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType is the media kind of a call
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a supported call type
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// CallStatus is the lifecycle state of a call.
// Ringing is implied between initiated and active and is never stored.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
)

// Terminal reports whether no further transition is allowed
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusMissed
}

// Call represents a one-to-one audio/video call.
// Participants[0] is the caller, Participants[1] the callee.
// Maps to CockroachDB calls table
type Call struct {
	CallID       uuid.UUID   `json:"callId" db:"call_id"`
	Participants []uuid.UUID `json:"participants" db:"participants"`
	CallType     CallType    `json:"callType" db:"call_type"`
	Status       CallStatus  `json:"status" db:"status"`
	InitiatedAt  time.Time   `json:"initiatedAt" db:"initiated_at"`
	StartedAt    *time.Time  `json:"startedAt,omitempty" db:"started_at"`
	EndedAt      *time.Time  `json:"endedAt,omitempty" db:"ended_at"`
	Duration     int         `json:"duration" db:"duration"` // seconds
	ArchivedBy   []uuid.UUID `json:"archivedBy" db:"archived_by"`
	UpdatedAt    time.Time   `json:"updatedAt" db:"updated_at"`
}

// CallerID returns the participant that initiated the call
func (c *Call) CallerID() uuid.UUID {
	if len(c.Participants) == 0 {
		return uuid.Nil
	}
	return c.Participants[0]
}

// CalleeID returns the participant that was called
func (c *Call) CalleeID() uuid.UUID {
	if len(c.Participants) < 2 {
		return uuid.Nil
	}
	return c.Participants[1]
}

// HasParticipant reports whether userID is one of the two participants
func (c *Call) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant who is not userID.
// ok is false when userID does not take part in the call.
func (c *Call) OtherParticipant(userID uuid.UUID) (uuid.UUID, bool) {
	if len(c.Participants) != 2 || !c.HasParticipant(userID) {
		return uuid.Nil, false
	}
	if c.Participants[0] == userID {
		return c.Participants[1], true
	}
	return c.Participants[0], true
}

// IsArchivedBy reports whether userID has hidden the call from their history
func (c *Call) IsArchivedBy(userID uuid.UUID) bool {
	for _, id := range c.ArchivedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// CallPage is one page of a user's call history
type CallPage struct {
	Calls       []*Call `json:"calls"`
	TotalCalls  int64   `json:"totalCalls"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
}
