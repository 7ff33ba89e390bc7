package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatcall-backend/internal/database"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/push"
)

// pushTokenExpiry drops token sets of users who have not registered a device in a while
const pushTokenExpiry = 30 * 24 * time.Hour

// PushTokenRepository stores device tokens in Redis.
// Keys: push:token:{token} holds the JSON token, push:user:{userID}:tokens the user's token set.
type PushTokenRepository struct {
	redis *database.RedisClient
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *database.RedisClient) *PushTokenRepository {
	return &PushTokenRepository{redis: client}
}

func tokenKey(token string) string {
	return fmt.Sprintf("push:token:%s", token)
}

func userTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("push:user:%s:tokens", userID)
}

// Store creates or overwrites a token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if r.redis.IsDegraded() {
		return database.ErrRedisDegraded
	}

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	now := time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	pipe := r.redis.Client.TxPipeline()
	pipe.Set(ctx, tokenKey(token.Token), data, 0)
	pipe.SAdd(ctx, userTokensKey(token.UserID), token.Token)
	pipe.Expire(ctx, userTokensKey(token.UserID), pushTokenExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	logger.Debug("Push token stored",
		zap.String("token_id", token.ID.String()),
		zap.String("user_id", token.UserID.String()),
		zap.String("platform", string(token.Platform)))
	return nil
}

// GetByToken retrieves a token by its value
func (r *PushTokenRepository) GetByToken(ctx context.Context, value string) (*push.Token, error) {
	if r.redis.IsDegraded() {
		return nil, database.ErrRedisDegraded
	}

	data, err := r.redis.Client.Get(ctx, tokenKey(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token push.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// GetByUserID retrieves all tokens of a user. Set members whose token key
// is gone are pruned.
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	if r.redis.IsDegraded() {
		return nil, database.ErrRedisDegraded
	}

	values, err := r.redis.Client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	result := make([]*push.Token, 0, len(values))
	for _, value := range values {
		token, err := r.GetByToken(ctx, value)
		if errors.Is(err, apperrors.ErrNotFound) {
			r.redis.Client.SRem(ctx, userTokensKey(userID), value)
			continue
		}
		if err != nil {
			logger.Warn("Failed to get token",
				zap.String("user_id", userID.String()),
				zap.String("token", push.MaskToken(value)),
				zap.Error(err))
			continue
		}
		if token.UserID != userID {
			// The device was re-registered by another user
			r.redis.Client.SRem(ctx, userTokensKey(userID), value)
			continue
		}
		result = append(result, token)
	}
	return result, nil
}

// Delete removes a token from userID's set and drops its record
func (r *PushTokenRepository) Delete(ctx context.Context, userID uuid.UUID, value string) error {
	if r.redis.IsDegraded() {
		return database.ErrRedisDegraded
	}

	pipe := r.redis.Client.TxPipeline()
	pipe.SRem(ctx, userTokensKey(userID), value)
	pipe.Del(ctx, tokenKey(value))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	logger.Debug("Push token deleted",
		zap.String("user_id", userID.String()),
		zap.String("token", push.MaskToken(value)))
	return nil
}

// MarkInactive flags a token the gateway rejected
func (r *PushTokenRepository) MarkInactive(ctx context.Context, value string) error {
	token, err := r.GetByToken(ctx, value)
	if err != nil {
		return err
	}
	token.Active = false
	token.UpdatedAt = time.Now().Unix()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := r.redis.Client.Set(ctx, tokenKey(value), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	logger.Debug("Push token marked as inactive",
		zap.String("token_id", token.ID.String()),
		zap.String("user_id", token.UserID.String()))
	return nil
}
