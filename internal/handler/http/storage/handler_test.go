package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/middleware"
	"chatcall-backend/internal/service/storage"
	apperrors "chatcall-backend/pkg/errors"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Upload(ctx context.Context, ownerID uuid.UUID, input *storage.UploadInput) (*domain.Attachment, error) {
	// Drain the body so the test sees what the handler streamed
	data, _ := io.ReadAll(input.Body)
	args := m.Called(ctx, ownerID, input.FileName, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Attachment), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, key string) (*domain.Attachment, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Attachment), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, ownerID uuid.UUID, key string) error {
	args := m.Called(ctx, ownerID, key)
	return args.Error(0)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupRouter(service *MockService, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != uuid.Nil {
			middleware.SetUserID(c, userID)
		}
		c.Next()
	})

	h := NewHandler(service)
	router.POST("/v1/files", h.UploadFile)
	router.GET("/v1/files/*key", h.GetFile)
	router.DELETE("/v1/files/*key", h.DeleteFile)
	return router
}

func serve(t *testing.T, router *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func multipartRequest(t *testing.T, field, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadFile(t *testing.T) {
	service := new(MockService)
	userID := uuid.New()
	content := []byte("\x89PNG\r\n\x1a\nfake image")
	key := "attachments/" + userID.String() + "/photo.png"

	// Setup expectations
	service.On("Upload", mock.Anything, userID, "photo.png", content).Return(&domain.Attachment{
		Key:      key,
		OwnerID:  userID,
		FileName: "photo.png",
		FileType: domain.FileTypeImage,
		FileSize: int64(len(content)),
		FileURL:  "https://cdn.example.com/" + key,
	}, nil)

	// Execute
	w, body := serve(t, setupRouter(service, userID), multipartRequest(t, "file", "photo.png", content))

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	var out struct {
		Key  string             `json:"key"`
		File domain.MessageFile `json:"file"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, key, out.Key)
	assert.Equal(t, domain.FileTypeImage, out.File.FileType)
	assert.Equal(t, "https://cdn.example.com/"+key, out.File.FileURL)
	service.AssertExpectations(t)
}

func TestUploadFile_MissingField(t *testing.T) {
	service := new(MockService)

	w, body := serve(t, setupRouter(service, uuid.New()), multipartRequest(t, "attachment", "a.txt", []byte("x")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", body.Error.Code)
	service.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadFile_Unauthenticated(t *testing.T) {
	service := new(MockService)

	w, _ := serve(t, setupRouter(service, uuid.Nil), multipartRequest(t, "file", "a.txt", []byte("x")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetFile(t *testing.T) {
	service := new(MockService)
	key := "attachments/abc/report.pdf"

	service.On("Get", mock.Anything, key).Return(&domain.Attachment{Key: key, FileType: domain.FileTypeDocument}, nil)
	service.On("Get", mock.Anything, "attachments/missing").Return(nil, apperrors.NotFound("file"))
	router := setupRouter(service, uuid.New())

	t.Run("nested key", func(t *testing.T) {
		w, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/v1/files/"+key, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var got domain.Attachment
		require.NoError(t, json.Unmarshal(body.Data, &got))
		assert.Equal(t, key, got.Key)
	})

	t.Run("unknown key", func(t *testing.T) {
		w, body := serve(t, router, httptest.NewRequest(http.MethodGet, "/v1/files/attachments/missing", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})
}

func TestDeleteFile(t *testing.T) {
	service := new(MockService)
	userID := uuid.New()
	router := setupRouter(service, userID)

	service.On("Delete", mock.Anything, userID, "attachments/mine.png").Return(nil)
	service.On("Delete", mock.Anything, userID, "attachments/theirs.png").Return(apperrors.Forbidden("file belongs to another user"))

	ok, _ := serve(t, router, httptest.NewRequest(http.MethodDelete, "/v1/files/attachments/mine.png", nil))
	denied, body := serve(t, router, httptest.NewRequest(http.MethodDelete, "/v1/files/attachments/theirs.png", nil))

	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
	service.AssertExpectations(t)
}
