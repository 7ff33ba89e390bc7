package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/domain"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/resilience"
)

// Mocks
type MockAttachmentRepository struct {
	mock.Mock
}

func (m *MockAttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAttachmentRepository) GetByKey(ctx context.Context, key string) (*domain.Attachment, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockObjectStorage struct {
	mock.Mock
	uploaded []byte
}

func (m *MockObjectStorage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucket, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	m.uploaded, _ = io.ReadAll(reader)
	args := m.Called(ctx, bucket, key, size, opts)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, args.Error(0)
}

func (m *MockObjectStorage) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucket, key, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucket, key, expires, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

// 1x1 transparent PNG
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func newTestService(t *testing.T, publicURL string) (*Service, *MockObjectStorage, *MockAttachmentRepository) {
	t.Helper()
	store := new(MockObjectStorage)
	repo := new(MockAttachmentRepository)
	store.On("BucketExists", mock.Anything, "attachments").Return(true, nil).Once()

	service, err := NewService(context.Background(), store, "attachments", publicURL, repo)
	require.NoError(t, err)
	return service, store, repo
}

func TestNewService_CreatesMissingBucket(t *testing.T) {
	store := new(MockObjectStorage)

	// Setup expectations
	store.On("BucketExists", mock.Anything, "attachments").Return(false, nil)
	store.On("MakeBucket", mock.Anything, "attachments", mock.Anything).Return(nil)

	// Execute
	service, err := NewService(context.Background(), store, "attachments", "", new(MockAttachmentRepository))

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, service)
	store.AssertExpectations(t)
}

func TestNewService_StorageUnavailable(t *testing.T) {
	store := new(MockObjectStorage)
	store.On("BucketExists", mock.Anything, "attachments").Return(false, errors.New("connection refused"))

	_, err := NewService(context.Background(), store, "attachments", "", new(MockAttachmentRepository))

	assert.Error(t, err)
}

func TestUpload_DetectsFileTypeFromContent(t *testing.T) {
	service, store, repo := newTestService(t, "https://cdn.example.com/")
	ownerID := uuid.New()

	// Setup expectations
	store.On("PutObject", mock.Anything, "attachments", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "attachments/"+ownerID.String()+"/") && strings.HasSuffix(key, ".png")
	}), int64(len(pngBytes)), mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
		return opts.ContentType == "image/png"
	})).Return(nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Attachment")).Return(nil)

	// Execute: the name claims a PDF, the bytes are a PNG
	attachment, err := service.Upload(context.Background(), ownerID, &UploadInput{
		FileName: "../../report.pdf",
		Size:     int64(len(pngBytes)),
		Body:     bytes.NewReader(pngBytes),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.FileTypeImage, attachment.FileType)
	assert.Equal(t, "image/png", attachment.ContentType)
	assert.Equal(t, "report.pdf", attachment.FileName)
	assert.Equal(t, "https://cdn.example.com/attachments/"+attachment.Key, attachment.FileURL)
	assert.Equal(t, pngBytes, store.uploaded, "sniffed bytes must still be uploaded")
	store.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestUpload_PlainTextIsDocument(t *testing.T) {
	service, store, repo := newTestService(t, "")
	body := []byte("meeting notes")
	presigned, _ := url.Parse("http://minio:9000/attachments/x?X-Amz-Signature=abc")

	store.On("PutObject", mock.Anything, "attachments", mock.Anything, int64(len(body)), mock.Anything).Return(nil)
	store.On("PresignedGetObject", mock.Anything, "attachments", mock.Anything, presignedURLExpiry, url.Values(nil)).Return(presigned, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	attachment, err := service.Upload(context.Background(), uuid.New(), &UploadInput{
		FileName: "notes.txt",
		Size:     int64(len(body)),
		Body:     bytes.NewReader(body),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.FileTypeDocument, attachment.FileType)
	assert.Equal(t, presigned.String(), attachment.FileURL)
}

func TestUpload_EmptyFile(t *testing.T) {
	service, store, _ := newTestService(t, "")

	_, err := service.Upload(context.Background(), uuid.New(), &UploadInput{FileName: "a.png", Body: bytes.NewReader(nil)})

	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidArgument))
	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpload_StorageCircuitOpen(t *testing.T) {
	service, store, repo := newTestService(t, "")

	// Setup expectations
	store.On("PutObject", mock.Anything, "attachments", mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("put object: %w", resilience.ErrCircuitOpen))

	// Execute
	_, err := service.Upload(context.Background(), uuid.New(), &UploadInput{
		FileName: "a.png",
		Size:     int64(len(pngBytes)),
		Body:     bytes.NewReader(pngBytes),
	})

	// Assert
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeServiceUnavail))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpload_MetadataFailureRemovesObject(t *testing.T) {
	service, store, repo := newTestService(t, "https://cdn.example.com")

	store.On("PutObject", mock.Anything, "attachments", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	store.On("RemoveObject", mock.Anything, "attachments", mock.Anything, mock.Anything).Return(nil)

	_, err := service.Upload(context.Background(), uuid.New(), &UploadInput{
		FileName: "a.png",
		Size:     int64(len(pngBytes)),
		Body:     bytes.NewReader(pngBytes),
	})

	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInternal))
	store.AssertCalled(t, "RemoveObject", mock.Anything, "attachments", mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	ownerID := uuid.New()
	key := "attachments/" + ownerID.String() + "/file.png"

	t.Run("owner deletes", func(t *testing.T) {
		service, store, repo := newTestService(t, "")

		repo.On("GetByKey", mock.Anything, key).Return(&domain.Attachment{Key: key, OwnerID: ownerID}, nil)
		store.On("RemoveObject", mock.Anything, "attachments", key, mock.Anything).Return(nil)
		repo.On("Delete", mock.Anything, key).Return(nil)

		require.NoError(t, service.Delete(context.Background(), ownerID, key))
		store.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("someone else", func(t *testing.T) {
		service, store, repo := newTestService(t, "")

		repo.On("GetByKey", mock.Anything, key).Return(&domain.Attachment{Key: key, OwnerID: ownerID}, nil)

		err := service.Delete(context.Background(), uuid.New(), key)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeForbidden))
		store.AssertNotCalled(t, "RemoveObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown key", func(t *testing.T) {
		service, _, repo := newTestService(t, "")

		repo.On("GetByKey", mock.Anything, key).Return(nil, apperrors.ErrNotFound)

		err := service.Delete(context.Background(), ownerID, key)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	})
}

func TestGet(t *testing.T) {
	service, _, repo := newTestService(t, "https://cdn.example.com")
	key := "attachments/a/b.png"

	repo.On("GetByKey", mock.Anything, key).Return(&domain.Attachment{Key: key, FileType: domain.FileTypeImage}, nil)

	attachment, err := service.Get(context.Background(), key)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/attachments/"+key, attachment.FileURL)
	assert.Equal(t, domain.FileTypeImage, attachment.AsMessageFile().FileType)
}
