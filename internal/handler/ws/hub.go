package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatcall-backend/internal/domain"
	"chatcall-backend/internal/middleware"
	"chatcall-backend/internal/presence"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// DefaultMaxConnections is used when HubConfig.MaxConnections is not set
const DefaultMaxConnections = 1000

// Heartbeat extends the presence mirror while a client keeps answering pings
type Heartbeat interface {
	Refresh(ctx context.Context, userID uuid.UUID) error
}

// HubConfig configures a Hub
type HubConfig struct {
	// MaxConnections is the maximum number of concurrent WebSocket connections
	MaxConnections int
	// CheckOrigin validates the Origin header of the upgrade request. nil allows any origin.
	CheckOrigin func(r *http.Request) bool
	// Heartbeat may be nil
	Heartbeat Heartbeat
}

// Hub owns the realtime connections of this instance and routes their
// frames through the event dispatcher
type Hub struct {
	registry   presence.Registry
	dispatcher *Dispatcher
	heartbeat  Heartbeat
	upgrader   websocket.Upgrader

	// Registered clients
	clients map[*Client]struct{}

	// Channels
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	// Concurrency limit: maxConnections is the maximum number of concurrent WebSocket connections
	maxConnections int
	semaphore      chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(registry presence.Registry, cfg HubConfig) *Hub {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		registry:   registry,
		dispatcher: NewDispatcher(),
		heartbeat:  cfg.Heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients:        make(map[*Client]struct{}),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, 256),
		done:           make(chan struct{}),
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}
}

// Handle registers fn for a client event
func (h *Hub) Handle(event string, fn HandlerFunc) {
	h.dispatcher.Handle(event, fn)
}

// Run handles hub operations until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.Close()
			}
			metrics.WebSocketConnections.Set(0)
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			metrics.WebSocketConnections.Set(float64(len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			metrics.WebSocketConnections.Set(float64(len(h.clients)))

		case frame := <-h.broadcast:
			for client := range h.clients {
				if err := client.enqueue(frame); err != nil {
					logger.Debug("Broadcast frame dropped",
						zap.String("conn_id", client.ID()),
						zap.Error(err))
				}
			}
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Wait blocks until every connection goroutine has exited
func (h *Hub) Wait() {
	h.wg.Wait()
}

// BroadcastOnlineUsers sends the current online user ids to every connection
func (h *Hub) BroadcastOnlineUsers() {
	users := h.registry.OnlineUsers()
	frame, err := json.Marshal(&outboundFrame{Event: domain.EventOnlineUsers, Data: users})
	if err != nil {
		logger.Error("Failed to marshal online users", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

// ServeWS upgrades the request and starts the client pumps. The caller may be
// authenticated by the auth middleware; userOnline then has to match that user.
func (h *Hub) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		metrics.WebSocketConnectionTotal.WithLabelValues("rejected_capacity").Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		metrics.WebSocketConnectionTotal.WithLabelValues("upgrade_failed").Inc()
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn)
	if userID, ok := middleware.UserID(c); ok {
		client.authUserID = userID
	}

	select {
	case h.register <- client:
	case <-h.done:
		<-h.semaphore
		conn.Close()
		return
	}
	metrics.WebSocketConnectionTotal.WithLabelValues("accepted").Inc()

	logger.Debug("WebSocket connected",
		zap.String("conn_id", client.ID()),
		zap.String("remote_addr", c.ClientIP()))

	h.wg.Add(2)
	go client.writePump()
	go client.readPump()
}

// disconnect runs once per client after its read loop ends
func (h *Hub) disconnect(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
	<-h.semaphore

	if userID, ok := h.registry.MarkOffline(client.ID()); ok {
		logger.Info("User went offline",
			zap.String("user_id", userID.String()),
			zap.String("conn_id", client.ID()))
		h.BroadcastOnlineUsers()
	}
}

// refresh extends the presence mirror of userID
func (h *Hub) refresh(userID uuid.UUID) {
	if h.heartbeat == nil || userID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.heartbeat.Refresh(ctx, userID); err != nil {
		logger.Debug("Failed to refresh presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
