package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/middleware"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/push"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) RegisterToken(ctx context.Context, userID uuid.UUID, input *push.RegisterTokenInput) (*push.Token, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.Token), args.Error(1)
}

func (m *MockService) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *MockService) SendToUser(ctx context.Context, userID uuid.UUID, kind string, n *push.Notification) (*push.SendResult, error) {
	args := m.Called(ctx, userID, kind, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.SendResult), args.Error(1)
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
		middleware.SetUserID(c, userID)
		c.Next()
	})

	h := NewHandler(service)
	router.POST("/v1/push/tokens", h.RegisterToken)
	router.DELETE("/v1/push/tokens", h.UnregisterToken)
	router.POST("/v1/push/send", h.SendNotification)
	return router
}

func perform(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestRegisterToken(t *testing.T) {
	service := new(MockService)
	userID := uuid.New()

	// Setup expectations
	service.On("RegisterToken", mock.Anything, userID, &push.RegisterTokenInput{
		Token:    "device-token-123456",
		Platform: push.PlatformFCM,
		DeviceID: "pixel-8",
	}).Return(&push.Token{ID: uuid.New(), UserID: userID, Token: "device-token-123456", Platform: push.PlatformFCM, Active: true}, nil)

	// Execute
	w, body := perform(t, setupRouter(service, userID), http.MethodPost, "/v1/push/tokens", map[string]string{
		"token":    "device-token-123456",
		"platform": "fcm",
		"deviceId": "pixel-8",
	})

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	var token push.Token
	require.NoError(t, json.Unmarshal(body.Data, &token))
	assert.True(t, token.Active)
	assert.Equal(t, userID, token.UserID)
	service.AssertExpectations(t)
}

func TestRegisterToken_Invalid(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		service := new(MockService)

		w, body := perform(t, setupRouter(service, uuid.New()), http.MethodPost, "/v1/push/tokens", map[string]string{"platform": "fcm"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_ARGUMENT", body.Error.Code)
		service.AssertNotCalled(t, "RegisterToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unsupported platform", func(t *testing.T) {
		service := new(MockService)
		service.On("RegisterToken", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.InvalidArgument("unsupported platform: web"))

		w, body := perform(t, setupRouter(service, uuid.New()), http.MethodPost, "/v1/push/tokens", map[string]string{
			"token":    "abc",
			"platform": "web",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "unsupported platform: web", body.Error.Message)
	})
}

func TestUnregisterToken(t *testing.T) {
	service := new(MockService)
	userID := uuid.New()
	router := setupRouter(service, userID)

	service.On("UnregisterToken", mock.Anything, userID, "known").Return(nil)
	service.On("UnregisterToken", mock.Anything, userID, "unknown").Return(apperrors.NotFound("push token"))

	ok, _ := perform(t, router, http.MethodDelete, "/v1/push/tokens", map[string]string{"token": "known"})
	missing, body := perform(t, router, http.MethodDelete, "/v1/push/tokens", map[string]string{"token": "unknown"})

	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	service.AssertExpectations(t)
}

func TestSendNotification(t *testing.T) {
	service := new(MockService)
	recipient := uuid.New()

	service.On("SendToUser", mock.Anything, recipient, KindCustom, mock.MatchedBy(func(n *push.Notification) bool {
		return n.Title == "Hello" && n.Body == "World" && n.Priority == push.PriorityNormal && n.Data["chatId"] == "c1"
	})).Return(&push.SendResult{SuccessCount: 2, FailureCount: 1}, nil)

	w, body := perform(t, setupRouter(service, uuid.New()), http.MethodPost, "/v1/push/send", map[string]interface{}{
		"userId": recipient,
		"title":  "Hello",
		"body":   "World",
		"data":   map[string]string{"chatId": "c1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var out struct {
		SuccessCount int `json:"successCount"`
		FailureCount int `json:"failureCount"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	service.AssertExpectations(t)
}
