package chat

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

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/middleware"
	"chatcall-backend/internal/service/chat"
	apperrors "chatcall-backend/pkg/errors"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) SendMessage(ctx context.Context, input *chat.SendMessageInput) (*chat.SendMessageOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.SendMessageOutput), args.Error(1)
}

func (m *MockService) FetchPageAs(ctx context.Context, userID, chatID uuid.UUID, page, limit int) (*domain.MessagePage, error) {
	args := m.Called(ctx, userID, chatID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessagePage), args.Error(1)
}

func (m *MockService) UpdateMessage(ctx context.Context, messageID, editorID uuid.UUID, content string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, editorID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockService) MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, messageID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockService) CreateChat(ctx context.Context, userA, userB uuid.UUID) (*domain.Chat, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chat), args.Error(1)
}

func (m *MockService) ListChats(ctx context.Context, userID uuid.UUID) ([]*domain.Chat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chat), args.Error(1)
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
	router.POST("/v1/messages", h.SendMessage)
	router.PATCH("/v1/messages/:id", h.UpdateMessage)
	router.POST("/v1/messages/:id/seen", h.MarkSeen)
	router.GET("/v1/chats", h.ListChats)
	router.POST("/v1/chats", h.CreateChat)
	router.GET("/v1/chats/:id/messages", h.GetMessages)
	return router
}

func perform(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSendMessage(t *testing.T) {
	service := new(MockService)
	senderID, receiverID, chatID, messageID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	router := setupRouter(service, senderID)

	// Setup expectations
	service.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *chat.SendMessageInput) bool {
		return in.SenderID == senderID && in.ReceiverID == receiverID && in.ChatID == chatID && in.Content == "hello"
	})).Return(&chat.SendMessageOutput{MessageID: messageID}, nil)

	// Execute
	w, body := perform(t, router, http.MethodPost, "/v1/messages", map[string]interface{}{
		"chatId":      chatID,
		"receiverId":  receiverID,
		"messageType": "text",
		"content":     "hello",
	})

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	var out chat.SendMessageOutput
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, messageID, out.MessageID)
	service.AssertExpectations(t)
}

func TestSendMessage_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing chat", map[string]interface{}{"receiverId": uuid.New(), "messageType": "text", "content": "x"}},
		{"unknown type", map[string]interface{}{"chatId": uuid.New(), "receiverId": uuid.New(), "messageType": "sticker"}},
		{"malformed id", map[string]interface{}{"chatId": "nope", "receiverId": uuid.New(), "messageType": "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)

			w, body := perform(t, setupRouter(service, uuid.New()), http.MethodPost, "/v1/messages", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_ARGUMENT", body.Error.Code)
			service.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessage_NotParticipant(t *testing.T) {
	service := new(MockService)
	service.On("SendMessage", mock.Anything, mock.Anything).Return(nil, apperrors.Forbidden("sender is not a participant of this chat"))

	w, body := perform(t, setupRouter(service, uuid.New()), http.MethodPost, "/v1/messages", map[string]interface{}{
		"chatId":      uuid.New(),
		"receiverId":  uuid.New(),
		"messageType": "text",
		"content":     "hello",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestGetMessages(t *testing.T) {
	service := new(MockService)
	userID, chatID := uuid.New(), uuid.New()

	service.On("FetchPageAs", mock.Anything, userID, chatID, 1, 20).Return(&domain.MessagePage{
		Messages:      []*domain.Message{},
		TotalMessages: 0,
		CurrentPage:   1,
	}, nil)

	w, body := perform(t, setupRouter(service, userID), http.MethodGet, "/v1/chats/"+chatID.String()+"/messages", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	service.AssertExpectations(t)
}

func TestUpdateMessage(t *testing.T) {
	service := new(MockService)
	userID, messageID := uuid.New(), uuid.New()

	service.On("UpdateMessage", mock.Anything, messageID, userID, "fixed typo").Return(&domain.Message{MessageID: messageID, Content: "fixed typo"}, nil)

	w, _ := perform(t, setupRouter(service, userID), http.MethodPatch, "/v1/messages/"+messageID.String(), map[string]string{"content": "fixed typo"})

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestMarkSeen(t *testing.T) {
	service := new(MockService)
	userID, messageID := uuid.New(), uuid.New()

	service.On("MarkSeen", mock.Anything, messageID, userID).Return(nil, apperrors.NotFound("message"))

	w, body := perform(t, setupRouter(service, userID), http.MethodPost, "/v1/messages/"+messageID.String()+"/seen", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestChats(t *testing.T) {
	service := new(MockService)
	userID, otherID, chatID := uuid.New(), uuid.New(), uuid.New()
	existing := &domain.Chat{ChatID: chatID, Participants: []uuid.UUID{userID, otherID}}
	router := setupRouter(service, userID)

	service.On("CreateChat", mock.Anything, userID, otherID).Return(existing, nil)
	service.On("ListChats", mock.Anything, userID).Return([]*domain.Chat{existing}, nil)

	created, _ := perform(t, router, http.MethodPost, "/v1/chats", map[string]interface{}{"participantId": otherID})
	listed, body := perform(t, router, http.MethodGet, "/v1/chats", nil)

	assert.Equal(t, http.StatusOK, created.Code)
	assert.Equal(t, http.StatusOK, listed.Code)
	var out struct {
		Chats []*domain.Chat `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &out))
	require.Len(t, out.Chats, 1)
	assert.Equal(t, chatID, out.Chats[0].ChatID)
}
