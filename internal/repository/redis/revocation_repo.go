package redis

import (
	"context"
	"fmt"

	"chatcall-backend/internal/database"
)

// RevocationRepository reads the blacklist of revoked token ids (jti).
// The identity service writes the entries with the token's remaining lifetime.
type RevocationRepository struct {
	redis *database.RedisClient
}

// NewRevocationRepository creates a new RevocationRepository
func NewRevocationRepository(client *database.RedisClient) *RevocationRepository {
	return &RevocationRepository{redis: client}
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

// IsRevoked reports whether jti is blacklisted
func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r.redis.IsDegraded() {
		return false, database.ErrRedisDegraded
	}
	n, err := r.redis.Client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}
	return n > 0, nil
}
