package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/domain"
)

type MockHeartbeat struct {
	mock.Mock
}

func (m *MockHeartbeat) Refresh(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func startHub(t *testing.T, f *handlerFixture) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	go f.hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", f.hub.ServeWS)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one with the given event arrives
func readUntil(t *testing.T, conn *websocket.Conn, event string) testFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame testFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == event {
			return frame
		}
	}
}

func TestHub_UserOnlineAndDisconnect(t *testing.T) {
	f := newHandlerFixture()
	url := startHub(t, f)
	userID := uuid.New()

	// Setup expectations
	f.chats.On("OnReconnect", mock.Anything, userID).Return(0, nil)

	// Execute
	conn := dial(t, url)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": domain.EventUserOnline,
		"ackId": "42",
		"data":  map[string]string{"userId": userID.String()},
	}))

	// Assert
	ackFrame := readUntil(t, conn, domain.EventAck)
	assert.Equal(t, "42", ackFrame.AckID)
	var ack testAck
	require.NoError(t, json.Unmarshal(ackFrame.Data, &ack))
	assert.True(t, ack.Success)

	_, online := f.registry.Resolve(userID)
	assert.True(t, online)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool {
		_, ok := f.registry.Resolve(userID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsOnlineUsers(t *testing.T) {
	f := newHandlerFixture()
	url := startHub(t, f)
	alice, bob := uuid.New(), uuid.New()
	f.chats.On("OnReconnect", mock.Anything, mock.Anything).Return(0, nil)

	aliceConn := dial(t, url)
	require.NoError(t, aliceConn.WriteJSON(map[string]interface{}{
		"event": domain.EventUserOnline,
		"data":  map[string]string{"userId": alice.String()},
	}))
	readUntil(t, aliceConn, domain.EventOnlineUsers)

	bobConn := dial(t, url)
	require.NoError(t, bobConn.WriteJSON(map[string]interface{}{
		"event": domain.EventUserOnline,
		"data":  map[string]string{"userId": bob.String()},
	}))

	// Alice sees both users once Bob announces himself
	frame := readUntil(t, aliceConn, domain.EventOnlineUsers)
	var users []uuid.UUID
	require.NoError(t, json.Unmarshal(frame.Data, &users))
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, users)
}

func TestHub_ErrorsKeepConnectionOpen(t *testing.T) {
	f := newHandlerFixture()
	url := startHub(t, f)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	readUntil(t, conn, domain.EventAck)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "nope", "ackId": "2"}))
	frame := readUntil(t, conn, domain.EventAck)

	assert.Equal(t, "2", frame.AckID)
}

func TestHub_RejectsAtCapacity(t *testing.T) {
	f := newHandlerFixture()
	f.hub = NewHub(f.registry, HubConfig{MaxConnections: 1})
	url := startHub(t, f)

	dial(t, url)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	f := newHandlerFixture()
	f.hub = NewHub(f.registry, HubConfig{
		CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "https://app.example.com" },
	})
	url := startHub(t, f)

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHub_RefreshHeartbeat(t *testing.T) {
	heartbeat := new(MockHeartbeat)
	userID := uuid.New()
	hub := NewHub(nil, HubConfig{Heartbeat: heartbeat})

	heartbeat.On("Refresh", mock.Anything, userID).Return(nil).Once()

	hub.refresh(userID)
	hub.refresh(uuid.Nil)

	heartbeat.AssertExpectations(t)
}
