// Package presence tracks which users hold a live realtime connection.
package presence

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// Conn is one live realtime session as seen by the core.
// The transport owns the underlying socket.
type Conn interface {
	ID() string
	Emit(event string, payload interface{}) error
}

// Registry maps a user to their single active connection.
// The latest MarkOnline for a user wins.
type Registry interface {
	// MarkOnline maps userID to conn and returns the connection it replaced, if any
	MarkOnline(userID uuid.UUID, conn Conn) Conn
	// MarkOffline removes whichever user is mapped to connID.
	// ok is false for unknown or already replaced handles.
	MarkOffline(connID string) (userID uuid.UUID, ok bool)
	Resolve(userID uuid.UUID) (Conn, bool)
	OnlineUsers() []uuid.UUID
}

// Mirror publishes presence outside the process (e.g. Redis) for other
// instances and REST readers. It is best effort.
type Mirror interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
}

const mirrorTimeout = 2 * time.Second

// MemoryRegistry is the process-local Registry
type MemoryRegistry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]Conn
	byConn map[string]uuid.UUID
	mirror Mirror
}

// NewMemoryRegistry creates an empty registry. mirror may be nil.
func NewMemoryRegistry(mirror Mirror) *MemoryRegistry {
	return &MemoryRegistry{
		byUser: make(map[uuid.UUID]Conn),
		byConn: make(map[string]uuid.UUID),
		mirror: mirror,
	}
}

// MarkOnline implements Registry
func (r *MemoryRegistry) MarkOnline(userID uuid.UUID, conn Conn) Conn {
	r.mu.Lock()
	previous, had := r.byUser[userID]
	if had {
		delete(r.byConn, previous.ID())
	}
	// A connection announcing a different user drops its old identity.
	if oldUser, ok := r.byConn[conn.ID()]; ok && oldUser != userID {
		delete(r.byUser, oldUser)
	}
	r.byUser[userID] = conn
	r.byConn[conn.ID()] = userID
	count := len(r.byUser)
	r.mu.Unlock()

	metrics.OnlineUsers.Set(float64(count))
	r.mirrorOnline(userID)

	if had && previous.ID() != conn.ID() {
		return previous
	}
	return nil
}

// MarkOffline implements Registry
func (r *MemoryRegistry) MarkOffline(connID string) (uuid.UUID, bool) {
	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
		delete(r.byUser, userID)
	}
	count := len(r.byUser)
	r.mu.Unlock()

	if !ok {
		return uuid.Nil, false
	}

	metrics.OnlineUsers.Set(float64(count))
	r.mirrorOffline(userID)
	return userID, true
}

// Resolve implements Registry
func (r *MemoryRegistry) Resolve(userID uuid.UUID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// OnlineUsers returns the online user ids in a stable order
func (r *MemoryRegistry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	users := make([]uuid.UUID, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		return bytes.Compare(users[i][:], users[j][:]) < 0
	})
	return users
}

func (r *MemoryRegistry) mirrorOnline(userID uuid.UUID) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := r.mirror.SetOnline(ctx, userID); err != nil {
		logger.Warn("Failed to mirror online presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

func (r *MemoryRegistry) mirrorOffline(userID uuid.UUID) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := r.mirror.SetOffline(ctx, userID); err != nil {
		logger.Warn("Failed to mirror offline presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

// Deliver emits event to userID if they are online.
// It reports whether a live connection accepted the frame.
func Deliver(reg Registry, userID uuid.UUID, event string, payload interface{}) bool {
	conn, ok := reg.Resolve(userID)
	if !ok {
		return false
	}
	if err := conn.Emit(event, payload); err != nil {
		logger.Debug("Failed to emit realtime event",
			zap.String("event", event),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return false
	}
	return true
}
