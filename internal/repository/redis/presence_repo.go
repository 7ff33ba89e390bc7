package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chatcall-backend/internal/database"
	"chatcall-backend/pkg/constants"
)

const onlineUsersKey = "presence:online"

// PresenceRepository mirrors the in-process presence registry into Redis
// so other instances and REST readers can see who is online.
type PresenceRepository struct {
	redis *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{redis: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetOnline marks a user online. The per-user key expires after PresenceTTL
// so a crashed instance does not leave users online forever.
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if r.redis.IsDegraded() {
		return database.ErrRedisDegraded
	}

	pipe := r.redis.Client.TxPipeline()
	pipe.Set(ctx, presenceKey(userID), "online", constants.PresenceTTL)
	pipe.SAdd(ctx, onlineUsersKey, userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	return nil
}

// SetOffline removes a user from the online set
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if r.redis.IsDegraded() {
		return database.ErrRedisDegraded
	}

	pipe := r.redis.Client.TxPipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.SRem(ctx, onlineUsersKey, userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}
	return nil
}

// IsOnline checks the per-user key, which is authoritative over the set
func (r *PresenceRepository) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	if r.redis.IsDegraded() {
		return false, database.ErrRedisDegraded
	}

	n, err := r.redis.Client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return n > 0, nil
}

// OnlineUsers returns the members of the online set whose per-user key is
// still alive. Stale members are pruned.
func (r *PresenceRepository) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	if r.redis.IsDegraded() {
		return nil, database.ErrRedisDegraded
	}

	members, err := r.redis.Client.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	if len(members) == 0 {
		return []uuid.UUID{}, nil
	}

	ids := make([]uuid.UUID, 0, len(members))
	pipe := r.redis.Client.Pipeline()
	checks := make([]*redis.IntCmd, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			pipe.SRem(ctx, onlineUsersKey, m)
			continue
		}
		ids = append(ids, id)
		checks = append(checks, pipe.Exists(ctx, presenceKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to check presence keys: %w", err)
	}

	online := make([]uuid.UUID, 0, len(ids))
	var stale []interface{}
	for i, id := range ids {
		if checks[i].Val() > 0 {
			online = append(online, id)
		} else {
			stale = append(stale, id.String())
		}
	}
	if len(stale) > 0 {
		r.redis.Client.SRem(ctx, onlineUsersKey, stale...)
	}
	return online, nil
}

// Refresh extends the per-user key while the connection stays open
func (r *PresenceRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	if r.redis.IsDegraded() {
		return database.ErrRedisDegraded
	}
	if err := r.redis.Client.Expire(ctx, presenceKey(userID), constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}
