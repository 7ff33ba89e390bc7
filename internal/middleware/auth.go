package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/pkg/jwt"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/response"
)

const userIDKey = "user_id"

// TokenValidator validates a bearer token
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

// RevocationChecker reports whether a token id (jti) was revoked
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthMiddleware validates the bearer token and sets the caller's user id.
// Browsers cannot set headers on a WebSocket upgrade, so the token may also
// come from the "token" query parameter.
// revocation may be nil. Revocation lookups fail open.
func AuthMiddleware(validator TokenValidator, revocation RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}
		if authenticate(c, validator, revocation, tokenString) {
			c.Next()
		}
	}
}

// OptionalAuthMiddleware authenticates the caller when a token is present and
// lets anonymous requests through. A present but invalid token is still rejected.
func OptionalAuthMiddleware(validator TokenValidator, revocation RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		if authenticate(c, validator, revocation, tokenString) {
			c.Next()
		}
	}
}

// authenticate validates tokenString and stores the claims. It aborts with 401 and returns false on failure.
func authenticate(c *gin.Context, validator TokenValidator, revocation RevocationChecker, tokenString string) bool {
	claims, err := validator.ValidateToken(tokenString)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return false
	}

	if revocation != nil && claims.ID != "" {
		revoked, err := revocation.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			logger.Warn("Revocation check failed, allowing request",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err))
		} else if revoked {
			response.Unauthorized(c, "Token revoked")
			c.Abort()
			return false
		}
	}

	c.Set(userIDKey, claims.UserID)
	return true
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// UserID returns the authenticated user set by AuthMiddleware
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// SetUserID is used by tests and internal routes that authenticate differently
func SetUserID(c *gin.Context, userID uuid.UUID) {
	c.Set(userIDKey, userID)
}
