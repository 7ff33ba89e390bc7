// Package push delivers notifications to mobile devices through FCM and APNs.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// Platform identifies the push gateway a device token belongs to
type Platform string

const (
	PlatformFCM  Platform = "fcm"
	PlatformAPNs Platform = "apns"
)

// Valid reports whether p is a supported platform
func (p Platform) Valid() bool {
	return p == PlatformFCM || p == PlatformAPNs
}

// Priority levels
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is a platform neutral push message
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Category string            `json:"category,omitempty"`
	// CollapseKey replaces an undelivered notification with the same key
	CollapseKey string `json:"collapseKey,omitempty"`
	// TTL drops the notification if it cannot be delivered in time. Zero means gateway default.
	TTL time.Duration `json:"-"`
}

// SendResult summarises one fan-out
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

func (r *SendResult) merge(other *SendResult) {
	if other == nil {
		return
	}
	r.SuccessCount += other.SuccessCount
	r.FailureCount += other.FailureCount
	r.InvalidTokens = append(r.InvalidTokens, other.InvalidTokens...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Provider sends a notification to device tokens of a single platform
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// Token is a device registration
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// TokenRepository stores device tokens.
// GetByToken returns apperrors.ErrNotFound for unknown tokens.
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByToken(ctx context.Context, token string) (*Token, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	Delete(ctx context.Context, userID uuid.UUID, token string) error
	MarkInactive(ctx context.Context, token string) error
}

// Service manages device tokens and fans notifications out to providers
type Service struct {
	tokens    TokenRepository
	providers map[Platform]Provider
}

// NewService creates a push service. Platforms without a provider are skipped on send.
func NewService(tokens TokenRepository, providers map[Platform]Provider) *Service {
	if providers == nil {
		providers = make(map[Platform]Provider)
	}
	return &Service{
		tokens:    tokens,
		providers: providers,
	}
}

// RegisterTokenInput is the body of a token registration
type RegisterTokenInput struct {
	Token    string   `json:"token" binding:"required"`
	Platform Platform `json:"platform" binding:"required"`
	DeviceID string   `json:"deviceId"`
}

// RegisterToken stores a device token for userID. Registering the same token
// again reactivates it and moves it to userID if the device changed hands.
func (s *Service) RegisterToken(ctx context.Context, userID uuid.UUID, input *RegisterTokenInput) (*Token, error) {
	value := strings.TrimSpace(input.Token)
	if value == "" {
		return nil, apperrors.MissingField("token")
	}
	if !input.Platform.Valid() {
		return nil, apperrors.InvalidArgument("platform must be fcm or apns")
	}

	existing, err := s.tokens.GetByToken(ctx, value)
	switch {
	case err == nil:
		if existing.UserID != userID {
			if err := s.tokens.Delete(ctx, existing.UserID, value); err != nil {
				return nil, apperrors.Internal("failed to move push token", err)
			}
			existing.ID = uuid.Nil
			existing.CreatedAt = 0
		}
		existing.UserID = userID
		existing.Platform = input.Platform
		existing.DeviceID = input.DeviceID
		existing.Active = true
		if err := s.tokens.Store(ctx, existing); err != nil {
			return nil, apperrors.Internal("failed to store push token", err)
		}
		return existing, nil
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return nil, apperrors.Internal("failed to look up push token", err)
	}

	token := &Token{
		UserID:   userID,
		Token:    value,
		Platform: input.Platform,
		DeviceID: input.DeviceID,
		Active:   true,
	}
	if err := s.tokens.Store(ctx, token); err != nil {
		return nil, apperrors.Internal("failed to store push token", err)
	}

	logger.Info("Push token registered",
		zap.String("user_id", userID.String()),
		zap.String("platform", string(token.Platform)),
		zap.String("token", MaskToken(value)))
	return token, nil
}

// UnregisterToken removes a token owned by userID
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.MissingField("token")
	}
	existing, err := s.tokens.GetByToken(ctx, value)
	if err != nil {
		return apperrors.FromRepo("push token", err)
	}
	if existing.UserID != userID {
		return apperrors.NotFound("push token")
	}
	if err := s.tokens.Delete(ctx, userID, value); err != nil {
		return apperrors.Internal("failed to delete push token", err)
	}
	return nil
}

// SendToUser delivers n to every active token of userID. Tokens the gateway
// reports as invalid are deactivated.
func (s *Service) SendToUser(ctx context.Context, userID uuid.UUID, kind string, n *Notification) (*SendResult, error) {
	tokens, err := s.tokens.GetByUserID(ctx, userID)
	if err != nil {
		metrics.PushNotificationsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("failed to load push tokens: %w", err)
	}

	byPlatform := make(map[Platform][]string)
	for _, t := range tokens {
		if t.Active {
			byPlatform[t.Platform] = append(byPlatform[t.Platform], t.Token)
		}
	}

	result := &SendResult{}
	if len(byPlatform) == 0 {
		metrics.PushNotificationsTotal.WithLabelValues(kind, "no_tokens").Inc()
		return result, nil
	}

	var sendErr error
	for platform, values := range byPlatform {
		provider, ok := s.providers[platform]
		if !ok {
			logger.Debug("No push provider configured for platform",
				zap.String("platform", string(platform)))
			continue
		}
		res, err := provider.Send(ctx, n, values)
		if err != nil {
			sendErr = errors.Join(sendErr, fmt.Errorf("%s: %w", platform, err))
			result.FailureCount += len(values)
			continue
		}
		result.merge(res)
	}

	s.deactivate(ctx, result.InvalidTokens)

	switch {
	case result.SuccessCount > 0:
		metrics.PushNotificationsTotal.WithLabelValues(kind, "success").Inc()
	case sendErr != nil || result.FailureCount > 0:
		metrics.PushNotificationsTotal.WithLabelValues(kind, "failure").Inc()
	}

	if sendErr != nil && result.SuccessCount == 0 {
		return result, sendErr
	}
	return result, nil
}

func (s *Service) deactivate(ctx context.Context, invalid []string) {
	for _, value := range invalid {
		if err := s.tokens.MarkInactive(ctx, value); err != nil {
			logger.Warn("Failed to deactivate invalid push token",
				zap.String("token", MaskToken(value)),
				zap.Error(err))
		}
	}
}

// MaskToken keeps tokens out of the logs
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
