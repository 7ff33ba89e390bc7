package presence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/presence/presencetest"
)

// MockMirror is a mock implementation of Mirror
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) SetOnline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockMirror) SetOffline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func TestMarkOnline_Resolve(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	userID := uuid.New()
	conn := presencetest.NewConn()

	previous := reg.MarkOnline(userID, conn)

	assert.Nil(t, previous)
	got, ok := reg.Resolve(userID)
	require.True(t, ok)
	assert.Equal(t, conn.ID(), got.ID())
	assert.Equal(t, []uuid.UUID{userID}, reg.OnlineUsers())
}

func TestMarkOnline_LatestConnectionWins(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	userID := uuid.New()
	first := presencetest.NewConn()
	second := presencetest.NewConn()

	reg.MarkOnline(userID, first)
	previous := reg.MarkOnline(userID, second)

	require.NotNil(t, previous)
	assert.Equal(t, first.ID(), previous.ID())
	got, ok := reg.Resolve(userID)
	require.True(t, ok)
	assert.Equal(t, second.ID(), got.ID())

	// The replaced handle disconnecting later must not evict the new one
	_, removed := reg.MarkOffline(first.ID())
	assert.False(t, removed)
	_, ok = reg.Resolve(userID)
	assert.True(t, ok)
}

func TestMarkOnline_SameConnectionTwice(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	userID := uuid.New()
	conn := presencetest.NewConn()

	reg.MarkOnline(userID, conn)
	previous := reg.MarkOnline(userID, conn)

	assert.Nil(t, previous)
	assert.Len(t, reg.OnlineUsers(), 1)
}

func TestMarkOnline_ConnectionSwitchesUser(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	alice, bob := uuid.New(), uuid.New()
	conn := presencetest.NewConn()

	reg.MarkOnline(alice, conn)
	reg.MarkOnline(bob, conn)

	_, ok := reg.Resolve(alice)
	assert.False(t, ok)
	_, ok = reg.Resolve(bob)
	assert.True(t, ok)
	assert.Len(t, reg.OnlineUsers(), 1)
}

func TestMarkOffline(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	userID := uuid.New()
	conn := presencetest.NewConn()
	reg.MarkOnline(userID, conn)

	removedUser, ok := reg.MarkOffline(conn.ID())

	assert.True(t, ok)
	assert.Equal(t, userID, removedUser)
	_, online := reg.Resolve(userID)
	assert.False(t, online)
	assert.Empty(t, reg.OnlineUsers())
}

func TestMarkOffline_UnknownHandleIsNoop(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	userID := uuid.New()
	reg.MarkOnline(userID, presencetest.NewConn())

	_, ok := reg.MarkOffline("stale-handle")

	assert.False(t, ok)
	assert.Len(t, reg.OnlineUsers(), 1)
}

func TestMirror_FailuresAreSwallowed(t *testing.T) {
	mirror := new(MockMirror)
	reg := NewMemoryRegistry(mirror)
	userID := uuid.New()
	conn := presencetest.NewConn()

	// Setup expectations
	mirror.On("SetOnline", mock.Anything, userID).Return(errors.New("redis down"))
	mirror.On("SetOffline", mock.Anything, userID).Return(nil)

	// Execute
	reg.MarkOnline(userID, conn)
	_, ok := reg.MarkOffline(conn.ID())

	// Assert
	assert.True(t, ok)
	mirror.AssertExpectations(t)
}

func TestDeliver(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	online, offline := uuid.New(), uuid.New()
	conn := presencetest.NewConn()
	reg.MarkOnline(online, conn)

	assert.True(t, Deliver(reg, online, "ping", map[string]string{"a": "b"}))
	assert.False(t, Deliver(reg, offline, "ping", nil))

	conn.Close()
	assert.False(t, Deliver(reg, online, "ping", nil))

	require.Len(t, conn.Named("ping"), 1)
}
