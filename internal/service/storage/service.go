// Package storage uploads message attachments to object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/resilience"
	"chatcall-backend/pkg/sanitize"
)

// sniffLen is how much of the body is inspected to detect the content type
const sniffLen = 3072

// presignedURLExpiry is used for file URLs when no public base URL is configured
const presignedURLExpiry = 7 * 24 * time.Hour

// ObjectStorage is the subset of the MinIO client the service uses
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

// AttachmentRepository stores upload metadata
type AttachmentRepository interface {
	Create(ctx context.Context, a *domain.Attachment) error
	GetByKey(ctx context.Context, key string) (*domain.Attachment, error)
	Delete(ctx context.Context, key string) error
}

// Service handles attachment storage
type Service struct {
	storage   ObjectStorage
	bucket    string
	publicURL string
	repo      AttachmentRepository
	now       func() time.Time
}

// NewService creates a storage service and makes sure the bucket exists.
// publicURL, when set, is the base of permanent file URLs (e.g. a CDN in
// front of the bucket); otherwise file URLs are presigned.
func NewService(ctx context.Context, storage ObjectStorage, bucket, publicURL string, repo AttachmentRepository) (*Service, error) {
	exists, err := storage.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := storage.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created attachment bucket", zap.String("bucket", bucket))
	}

	return &Service{
		storage:   storage,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		repo:      repo,
		now:       time.Now,
	}, nil
}

// UploadInput is one file of a multipart upload
type UploadInput struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// Upload stores the file and returns its metadata. The file type comes
// from the sniffed MIME type, not from the client supplied name.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, input *UploadInput) (*domain.Attachment, error) {
	if input.Size <= 0 {
		return nil, apperrors.InvalidArgument("file is empty")
	}
	fileName := sanitize.Filename(input.FileName)
	if fileName == "" {
		return nil, apperrors.MissingField("fileName")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(input.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperrors.InvalidArgument("failed to read upload")
	}
	head = head[:n]
	mime := mimetype.Detect(head)

	key := fmt.Sprintf("attachments/%s/%s%s", ownerID, uuid.New(), mime.Extension())
	body := io.MultiReader(bytes.NewReader(head), input.Body)

	_, err = s.storage.PutObject(ctx, s.bucket, key, body, input.Size, minio.PutObjectOptions{
		ContentType: mime.String(),
		UserMetadata: map[string]string{
			"owner-id":  ownerID.String(),
			"file-name": url.QueryEscape(fileName),
		},
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, apperrors.ServiceUnavailable("file storage is temporarily unavailable")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to upload file", err)
	}

	attachment := &domain.Attachment{
		Key:         key,
		OwnerID:     ownerID,
		FileName:    fileName,
		FileType:    domain.FileTypeFromMIME(mime.String()),
		ContentType: mime.String(),
		FileSize:    input.Size,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, attachment); err != nil {
		s.removeObject(ctx, key)
		return nil, apperrors.Internal("failed to save file metadata", err)
	}

	attachment.FileURL, err = s.fileURL(ctx, key)
	if err != nil {
		return nil, apperrors.Internal("failed to build file url", err)
	}

	logger.Debug("Attachment uploaded",
		zap.String("key", key),
		zap.String("owner_id", ownerID.String()),
		zap.String("content_type", attachment.ContentType),
		zap.Int64("size", attachment.FileSize))
	return attachment, nil
}

// Delete removes an attachment owned by ownerID
func (s *Service) Delete(ctx context.Context, ownerID uuid.UUID, key string) error {
	attachment, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return apperrors.FromRepo("file", err)
	}
	if attachment.OwnerID != ownerID {
		return apperrors.Forbidden("only the uploader can delete a file")
	}

	if err := s.storage.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Internal("failed to delete file from storage", err)
	}
	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Internal("failed to delete file metadata", err)
	}
	return nil
}

// Get returns an attachment with a fresh URL
func (s *Service) Get(ctx context.Context, key string) (*domain.Attachment, error) {
	attachment, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, apperrors.FromRepo("file", err)
	}
	attachment.FileURL, err = s.fileURL(ctx, key)
	if err != nil {
		return nil, apperrors.Internal("failed to build file url", err)
	}
	return attachment, nil
}

func (s *Service) fileURL(ctx context.Context, key string) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + key, nil
	}
	u, err := s.storage.PresignedGetObject(ctx, s.bucket, key, presignedURLExpiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *Service) removeObject(ctx context.Context, key string) {
	if err := s.storage.RemoveObject(context.WithoutCancel(ctx), s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn("Failed to remove orphaned object",
			zap.String("key", key),
			zap.Error(err))
	}
}
