package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatcall-backend/pkg/constants"
	apperrors "chatcall-backend/pkg/errors"
	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

const sendBufferSize = 256

var (
	// ErrConnectionClosed is returned by Emit after the connection went away
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Emit when the client does not keep up
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one WebSocket connection. It implements presence.Conn.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte

	// authUserID is set when the upgrade request carried a valid token
	authUserID uuid.UUID

	mu     sync.RWMutex
	userID uuid.UUID
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan []byte, sendBufferSize),
	}
}

// ID is the connection handle
func (c *Client) ID() string {
	return c.id
}

// UserID is the user announced with userOnline, uuid.Nil before that
func (c *Client) UserID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setUserID(userID uuid.UUID) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// identify resolves the user a userOnline announcement may bind this connection to
func (c *Client) identify(claimed uuid.UUID) (uuid.UUID, error) {
	if c.authUserID == uuid.Nil {
		if claimed == uuid.Nil {
			return uuid.Nil, apperrors.MissingField("userId")
		}
		return claimed, nil
	}
	if claimed != uuid.Nil && claimed != c.authUserID {
		return uuid.Nil, apperrors.Forbidden("userId does not match the authenticated user")
	}
	return c.authUserID, nil
}

// actor returns the user acting on this connection. A user id carried in the
// payload must match it.
func (c *Client) actor(claimed uuid.UUID) (uuid.UUID, error) {
	userID := c.UserID()
	if userID == uuid.Nil {
		return uuid.Nil, apperrors.Unauthorized("send userOnline before other events")
	}
	if claimed != uuid.Nil && claimed != userID {
		return uuid.Nil, apperrors.Forbidden("payload user does not match the connection")
	}
	return userID, nil
}

// Emit queues a server event for this connection
func (c *Client) Emit(event string, payload interface{}) error {
	frame, err := json.Marshal(&outboundFrame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event, err)
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.WebSocketMessageDroppedTotal.WithLabelValues("closed").Inc()
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		metrics.WebSocketMessageDroppedTotal.WithLabelValues("buffer_full").Inc()
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads frames and dispatches them one at a time, in arrival order
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		go c.hub.refresh(c.UserID())
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("conn_id", c.id),
					zap.String("user_id", c.UserID().String()),
					zap.Error(err))
			}
			return
		}

		c.hub.dispatcher.Dispatch(c, frame)
	}
}

// writePump writes queued frames and pings the peer
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
