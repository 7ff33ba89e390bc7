package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/internal/middleware"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/push"
	"chatcall-backend/pkg/response"
)

// KindCustom labels notifications sent through the REST API
const KindCustom = "custom"

// Service is the push token registry and sender
type Service interface {
	RegisterToken(ctx context.Context, userID uuid.UUID, input *push.RegisterTokenInput) (*push.Token, error)
	UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error
	SendToUser(ctx context.Context, userID uuid.UUID, kind string, n *push.Notification) (*push.SendResult, error)
}

// Handler handles push notification HTTP requests
type Handler struct {
	pushService Service
}

// NewHandler creates a new push notification handler
func NewHandler(pushService Service) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

// RegisterToken registers a device token for the authenticated user
// @Summary Register push notification token
// @Description Registering the same token again refreshes it; a token owned by another user moves to the caller
// @Tags Push
// @Accept json
// @Produce json
// @Param request body push.RegisterTokenInput true "Token registration data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /push/tokens [post]
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req push.RegisterTokenInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token, err := h.pushService.RegisterToken(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("Push token registered",
		zap.String("user_id", userID.String()),
		zap.String("platform", string(token.Platform)))

	response.Success(c, http.StatusOK, token)
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken removes a device token of the authenticated user
// @Summary Unregister push notification token
// @Tags Push
// @Accept json
// @Produce json
// @Param request body UnregisterTokenRequest true "Token unregistration data"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /push/tokens [delete]
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.pushService.UnregisterToken(c.Request.Context(), userID, req.Token); err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("Push token unregistered",
		zap.String("user_id", userID.String()),
		zap.String("token", push.MaskToken(req.Token)))

	response.Success(c, http.StatusOK, gin.H{"message": "Token unregistered successfully"})
}

// SendNotificationRequest represents a notification to a user's devices
type SendNotificationRequest struct {
	UserID uuid.UUID         `json:"userId" binding:"required"`
	Title  string            `json:"title" binding:"required"`
	Body   string            `json:"body" binding:"required"`
	Data   map[string]string `json:"data"`
}

// SendNotification sends a notification to every active device of a user
// @Summary Send push notification
// @Tags Push
// @Accept json
// @Produce json
// @Param request body SendNotificationRequest true "Notification"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /push/send [post]
func (h *Handler) SendNotification(c *gin.Context) {
	senderID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.pushService.SendToUser(c.Request.Context(), req.UserID, KindCustom, &push.Notification{
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		Priority: push.PriorityNormal,
		Sound:    "default",
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("Push notification sent",
		zap.String("sender_id", senderID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.Int("success", result.SuccessCount),
		zap.Int("failure", result.FailureCount))

	response.Success(c, http.StatusOK, gin.H{
		"successCount": result.SuccessCount,
		"failureCount": result.FailureCount,
	})
}
