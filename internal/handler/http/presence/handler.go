package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/internal/presence"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/response"
)

// Store is the cluster wide presence mirror
type Store interface {
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineUsers(ctx context.Context) ([]uuid.UUID, error)
}

// Presence sources reported to clients
const (
	SourceCluster = "cluster"
	SourceLocal   = "local"
)

// OnlineUsersResponse lists the users with a live connection
type OnlineUsersResponse struct {
	Count  int         `json:"count"`
	Users  []uuid.UUID `json:"users"`
	Source string      `json:"source"`
}

// StatusResponse is the presence of one user
type StatusResponse struct {
	UserID uuid.UUID `json:"userId"`
	Online bool      `json:"online"`
	Source string    `json:"source"`
}

// Handler answers presence queries from the Redis mirror and falls back to
// this instance's registry while the mirror is unavailable
type Handler struct {
	store    Store
	registry presence.Registry
}

// NewHandler creates a new presence handler
func NewHandler(store Store, registry presence.Registry) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
	}
}

// ListOnline returns every online user
// GET /v1/presence
func (h *Handler) ListOnline(c *gin.Context) {
	users, err := h.store.OnlineUsers(c.Request.Context())
	source := SourceCluster
	if err != nil {
		logger.Warn("Presence mirror unavailable, using local registry", zap.Error(err))
		users, source = h.registry.OnlineUsers(), SourceLocal
	}

	response.Success(c, http.StatusOK, OnlineUsersResponse{
		Count:  len(users),
		Users:  users,
		Source: source,
	})
}

// GetStatus reports whether one user is online
// GET /v1/presence/:userId
func (h *Handler) GetStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	online, err := h.store.IsOnline(c.Request.Context(), userID)
	source := SourceCluster
	if err != nil {
		logger.Warn("Presence mirror unavailable, using local registry",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		_, online = h.registry.Resolve(userID)
		source = SourceLocal
	}

	response.Success(c, http.StatusOK, StatusResponse{
		UserID: userID,
		Online: online,
		Source: source,
	})
}
