/*
Package chat is the realtime fan-out engine: live websocket clients, the Hub that
indexes them by user and room channel, and the Engine that handles inbound events.

This file defines Client, one authenticated websocket connection, and its read
and write pumps.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"duochat/internal/app/user"
	"duochat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendBuffer is the number of outbound frames queued per client.
	sendBuffer = 256
)

// Handler consumes the inbound side of a connection.
type Handler interface {
	Dispatch(ctx context.Context, c *Client, raw []byte)
	Disconnect(ctx context.Context, c *Client)
}

// Client is one authenticated realtime connection. Its identity is bound at
// handshake time and never changes.
type Client struct {
	conn *websocket.Conn
	user *user.User

	// send queues outbound frames. Only Hub.Unregister closes it.
	send chan []byte

	// rooms is the set of channels the client joined, guarded by the Hub lock.
	rooms map[string]struct{}

	closeOnce sync.Once
	logger    zerolog.Logger
}

// NewClient binds conn to u.
func NewClient(conn *websocket.Conn, u *user.User) *Client {
	return &Client{
		conn:   conn,
		user:   u,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
		logger: logx.Logger().With().Str("user_id", u.ID).Logger(),
	}
}

// UserID returns the id of the connected user.
func (c *Client) UserID() string {
	return c.user.ID
}

// User returns the user bound at handshake.
func (c *Client) User() *user.User {
	return c.user
}

// ReadPump reads frames until the connection fails, handing each to h.
// Events of one client are dispatched sequentially, in arrival order.
func (c *Client) ReadPump(ctx context.Context, h Handler) {
	defer func() {
		h.Disconnect(ctx, c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Unexpected websocket close")
			}
			return
		}

		h.Dispatch(ctx, c, raw)
	}
}

// WritePump drains the send queue onto the connection and keeps it alive with pings.
// It returns when the queue is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the pump should stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
