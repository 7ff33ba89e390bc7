package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType distinguishes text messages from attachment messages
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeMedia MessageType = "media"
)

// FileType is the coarse attachment category derived from the MIME type
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeDocument FileType = "document"
)

// FileTypeFromMIME maps "image/png" to image, "audio/*" to audio and so on.
// Everything else is a document.
func FileTypeFromMIME(mime string) FileType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mime, "audio/"):
		return FileTypeAudio
	case strings.HasPrefix(mime, "video/"):
		return FileTypeVideo
	default:
		return FileTypeDocument
	}
}

// MessageFile describes one attachment stored in object storage
type MessageFile struct {
	FileType FileType `json:"fileType"`
	FileName string   `json:"fileName"`
	FileURL  string   `json:"fileUrl"`
	FileSize int64    `json:"fileSize"`
	Duration *float64 `json:"duration,omitempty"` // seconds, audio/video only
}

// SeenStatus records whether the receiver has read the message
type SeenStatus struct {
	Status bool       `json:"status"`
	ReadAt *time.Time `json:"readAt,omitempty"`
}

// ReadReceipt is one reader of a message
type ReadReceipt struct {
	UserID uuid.UUID `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message represents a chat message entity
// Maps to Cassandra messages table
type Message struct {
	MessageID   uuid.UUID     `json:"messageId"`
	ChatID      uuid.UUID     `json:"chatId"`
	SenderID    uuid.UUID     `json:"senderId"`
	ReceiverID  uuid.UUID     `json:"receiverId"`
	MessageType MessageType   `json:"messageType"`
	Content     string        `json:"content,omitempty"`
	Files       []MessageFile `json:"files,omitempty"`
	Delivered   bool          `json:"delivered"`
	IsSeen      SeenStatus    `json:"isSeen"`
	ReadBy      []ReadReceipt `json:"readBy"`
	Timestamp   time.Time     `json:"timestamp"`
	EditedAt    *time.Time    `json:"editedAt,omitempty"`
}

// MessagePage is one newest-first page of a chat's history
type MessagePage struct {
	Messages      []*Message `json:"messages"`
	TotalMessages int64      `json:"totalMessages"`
	CurrentPage   int        `json:"currentPage"`
	TotalPages    int        `json:"totalPages"`
}
