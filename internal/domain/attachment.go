package domain

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is an uploaded file referenced by media messages.
// Maps to CockroachDB attachments table
type Attachment struct {
	Key         string    `json:"key" db:"object_key"`
	OwnerID     uuid.UUID `json:"ownerId" db:"owner_id"`
	FileName    string    `json:"fileName" db:"file_name"`
	FileType    FileType  `json:"fileType" db:"file_type"`
	ContentType string    `json:"contentType" db:"content_type"`
	FileSize    int64     `json:"fileSize" db:"file_size"`
	FileURL     string    `json:"fileUrl" db:"-"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// AsMessageFile converts the upload into the shape embedded in a media message
func (a *Attachment) AsMessageFile() MessageFile {
	return MessageFile{
		FileType: a.FileType,
		FileName: a.FileName,
		FileURL:  a.FileURL,
		FileSize: a.FileSize,
	}
}
