package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/pkg/log"
)

// Client is one live transport. The hub keys records by Identifier, not
// by connection, so a Client is only ever the current transport handle
// of a record (or a displaced handle on its way out).
type Client struct {
	ID         string
	Identifier string
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte

	done      chan struct{}
	closeOnce sync.Once
	config    config.WebSocketConfig
}

func NewClient(id, identifier string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:         id,
		Identifier: identifier,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		// Transport keepalive counts as liveness; no broadcast.
		c.Hub.Touch(c.Identifier)
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Str(log.FieldConnID, c.ID).Err(err).Msg("websocket read error")
			}
			break
		}

		c.Hub.Touch(c.Identifier)
		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// SendMessage queues a JSON-encoded event for delivery. A full send
// buffer drops the event rather than blocking the caller.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
		l := log.L()
		l.Warn().Str(log.FieldConnID, c.ID).Str(log.FieldUserID, c.Identifier).Msg("send buffer full, dropping event")
	}
	return nil
}

// Close tears down the transport. Safe to call more than once; the hub
// uses it to evict a displaced connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Closed reports whether Close has run.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
