package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds the WebSocket connection tuning knobs.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection is one WebSocket client. Its id doubles as the participant id
// in every room it joins. Outbound events flow through the buffered send
// channel drained by writePump; inbound messages are dispatched by
// readPump on this connection's goroutine, which gives the engine strict
// arrival order per connection.
type Connection struct {
	ID string

	gw   *Gateway
	conn *websocket.Conn
	send chan []byte

	connectedAt time.Time

	sendOnce  sync.Once
	closeOnce sync.Once
}

// closeSend stops writePump; safe to call more than once.
func (c *Connection) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// close tears down the underlying socket; safe to call more than once.
func (c *Connection) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.gw.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.gw.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client messages and hands them to the gateway dispatcher.
// When it returns, the connection is gone: membership cleanup runs as the
// implicit disconnect event.
func (c *Connection) readPump() {
	defer func() {
		c.gw.handleDisconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(c.gw.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.gw.dispatch(c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.gw.config.ReadTimeout))
	}
}
