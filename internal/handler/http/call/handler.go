package call

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/middleware"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/pagination"
	"chatcall-backend/pkg/response"
)

// Service is the call history side of the call service
type Service interface {
	GetCallDetails(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	ArchiveCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error)
	ListCalls(ctx context.Context, userID uuid.UUID, page, limit int) (*domain.CallPage, error)
}

// Handler handles call HTTP requests
type Handler struct {
	callService Service
}

// NewHandler creates a new call handler
func NewHandler(callService Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// ListCalls returns the caller's call history, most recent first
// GET /v1/calls?page=1&limit=20
func (h *Handler) ListCalls(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	page, err := h.callService.ListCalls(c.Request.Context(), userID, params.Page, params.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// GetCall returns one call of the caller
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	call, err := h.callService.GetCallDetails(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !call.HasParticipant(userID) {
		response.FromError(c, apperrors.Forbidden("user is not a participant of this call"))
		return
	}

	response.Success(c, http.StatusOK, call)
}

// ArchiveCall hides a call from the caller's history
// POST /v1/calls/:id/archive
func (h *Handler) ArchiveCall(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	call, err := h.callService.ArchiveCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}
