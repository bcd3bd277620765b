package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mediation_desk/internal/config"
	"mediation_desk/internal/domain"
	"mediation_desk/pkg/logger"
)

// Client is a websocket Subscriber. A client whose send buffer fills up is
// closed rather than allowed to stall the hub.
type Client struct {
	id       string
	identity Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	config   config.WebSocketConfig
	log      logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, identity Identity, cfg config.WebSocketConfig, log logger.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
		config:   cfg,
		log:      log.With("subscriber_id", id, "user_id", identity.UserID),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() Identity { return c.identity }

func (c *Client) Send(evt *domain.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Error("Failed to encode event", "error", err, "event", evt.Type)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("Send buffer full, closing connection")
		c.Close()
		return false
	}
}

// Close stops the write pump, which closes the socket and unblocks ReadPump.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Run registers the client and blocks until the connection ends.
func (c *Client) Run(ctx context.Context) {
	c.hub.Connect(c)
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(context.WithoutCancel(ctx), c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var frame domain.ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.Send(domain.NewErrorEvent("", "BAD_REQUEST", "malformed frame"))
			continue
		}

		if err := c.hub.Dispatch(ctx, c, &frame); err != nil {
			c.log.Debug("Frame rejected", "type", frame.Type, "request_id", frame.RequestID, "error", err)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
