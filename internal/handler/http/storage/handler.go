package storage

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/middleware"
	"chatcall-backend/internal/service/storage"
	"chatcall-backend/pkg/constants"
	"chatcall-backend/pkg/response"
)

// Metrics for attachment uploads
var (
	storageUploadRejectedSizeExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_upload_rejected_size_exceeded_total",
		Help: "Total number of upload requests rejected due to file size exceeding limit",
	})

	storageUploadSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storage_upload_size_bytes",
		Help:    "Histogram of uploaded file sizes in bytes",
		Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 52428800}, // 1KB, 10KB, 100KB, 1MB, 10MB, 50MB
	})

	storageUploadByFileType = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_upload_by_file_type_total",
		Help: "Total number of uploads by detected file type",
	}, []string{"file_type"})
)

// Service is the attachment store
type Service interface {
	Upload(ctx context.Context, ownerID uuid.UUID, input *storage.UploadInput) (*domain.Attachment, error)
	Get(ctx context.Context, key string) (*domain.Attachment, error)
	Delete(ctx context.Context, ownerID uuid.UUID, key string) error
}

// Handler handles storage HTTP requests
type Handler struct {
	storageService Service
}

// NewHandler creates a new storage handler
func NewHandler(storageService Service) *Handler {
	return &Handler{
		storageService: storageService,
	}
}

// UploadFile stores a multipart "file" field and returns its message file metadata
// POST /v1/files
func (h *Handler) UploadFile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	// Multipart overhead on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, constants.MaxAttachmentSize+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			storageUploadRejectedSizeExceeded.Inc()
			response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit")
			return
		}
		response.ValidationError(c, "Missing file field")
		return
	}
	if header.Size > constants.MaxAttachmentSize {
		storageUploadRejectedSizeExceeded.Inc()
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.ValidationError(c, "Unreadable file")
		return
	}
	defer file.Close()

	attachment, err := h.storageService.Upload(c.Request.Context(), userID, &storage.UploadInput{
		FileName: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	storageUploadSizeBytes.Observe(float64(attachment.FileSize))
	storageUploadByFileType.WithLabelValues(string(attachment.FileType)).Inc()

	response.Success(c, http.StatusCreated, gin.H{
		"key":  attachment.Key,
		"file": attachment.AsMessageFile(),
	})
}

// GetFile returns the metadata and a download URL of an attachment
// GET /v1/files/*key
func (h *Handler) GetFile(c *gin.Context) {
	key := objectKey(c)
	if key == "" {
		response.ValidationError(c, "Missing file key")
		return
	}

	attachment, err := h.storageService.Get(c.Request.Context(), key)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, attachment)
}

// DeleteFile removes an attachment the caller uploaded
// DELETE /v1/files/*key
func (h *Handler) DeleteFile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	key := objectKey(c)
	if key == "" {
		response.ValidationError(c, "Missing file key")
		return
	}

	if err := h.storageService.Delete(c.Request.Context(), userID, key); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "File deleted"})
}

// objectKey reads the wildcard key; object keys contain slashes
func objectKey(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}
