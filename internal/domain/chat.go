package domain

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a direct conversation between two users.
// LastMessageID is a lookup-only pointer refreshed on every new message.
// Maps to CockroachDB chats table
type Chat struct {
	ChatID        uuid.UUID   `json:"chatId" db:"chat_id"`
	Participants  []uuid.UUID `json:"participants" db:"participants"`
	LastMessageID *uuid.UUID  `json:"lastMessageId,omitempty" db:"last_message_id"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt" db:"updated_at"`
}

// HasParticipant reports whether userID belongs to the chat
func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
