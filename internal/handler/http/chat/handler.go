package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/middleware"
	"chatcall-backend/internal/service/chat"
	"chatcall-backend/pkg/pagination"
	"chatcall-backend/pkg/response"
)

// Service is the message delivery pipeline as used by the REST API
type Service interface {
	SendMessage(ctx context.Context, input *chat.SendMessageInput) (*chat.SendMessageOutput, error)
	FetchPageAs(ctx context.Context, userID, chatID uuid.UUID, page, limit int) (*domain.MessagePage, error)
	UpdateMessage(ctx context.Context, messageID, editorID uuid.UUID, content string) (*domain.Message, error)
	MarkSeen(ctx context.Context, messageID, receiverID uuid.UUID) (*domain.Message, error)
	CreateChat(ctx context.Context, userA, userB uuid.UUID) (*domain.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]*domain.Chat, error)
}

// Handler handles chat HTTP requests
type Handler struct {
	chatService Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ChatID      uuid.UUID            `json:"chatId" binding:"required"`
	ReceiverID  uuid.UUID            `json:"receiverId" binding:"required"`
	MessageType domain.MessageType   `json:"messageType" binding:"required,oneof=text media"`
	Content     string               `json:"content"`
	Files       []domain.MessageFile `json:"files"`
}

// SendMessage handles sending a new message through the same pipeline as the realtime channel
// POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	senderID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	output, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		ChatID:      req.ChatID,
		SenderID:    senderID,
		ReceiverID:  req.ReceiverID,
		MessageType: req.MessageType,
		Content:     req.Content,
		Files:       req.Files,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, output)
}

// GetMessages retrieves one page of a chat, newest first
// GET /v1/chats/:id/messages?page=1&limit=20
func (h *Handler) GetMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid chat ID")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	page, err := h.chatService.FetchPageAs(c.Request.Context(), userID, chatID, params.Page, params.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// UpdateMessageRequest represents an edit of a text message
type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateMessage edits a message the caller sent
// PATCH /v1/messages/:id
func (h *Handler) UpdateMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	message, err := h.chatService.UpdateMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, message)
}

// MarkSeen marks a received message as seen
// POST /v1/messages/:id/seen
func (h *Handler) MarkSeen(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	message, err := h.chatService.MarkSeen(c.Request.Context(), messageID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, message)
}

// CreateChatRequest names the other participant
type CreateChatRequest struct {
	ParticipantID uuid.UUID `json:"participantId" binding:"required"`
}

// CreateChat returns the caller's chat with another user, creating it if needed
// POST /v1/chats
func (h *Handler) CreateChat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.chatService.CreateChat(c.Request.Context(), userID, req.ParticipantID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListChats returns the caller's chats, most recently active first
// GET /v1/chats
func (h *Handler) ListChats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"chats": chats})
}
