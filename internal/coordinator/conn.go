package coordinator

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Pairlink/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound messages buffered per connection before deliveries are dropped.
	sendBuffer = 256
)

// Conn is one participant's WebSocket. Its identity is per connection, not
// per user: a reconnecting participant gets a new ID.
type Conn struct {
	id      string
	hub     *Hub
	ws      *websocket.Conn
	logger  *slog.Logger
	maxSize int64

	// send is drained by WritePump. mu guards closing it against
	// concurrent deliveries.
	mu     sync.RWMutex
	send   chan *signaling.Message
	closed bool
}

// NewConn wraps an upgraded WebSocket.
func NewConn(hub *Hub, ws *websocket.Conn, maxMessageSize int64, logger *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:      id,
		hub:     hub,
		ws:      ws,
		logger:  logger.With("member", id),
		maxSize: maxMessageSize,
		send:    make(chan *signaling.Message, sendBuffer),
	}
}

// ID returns the opaque member identity.
func (c *Conn) ID() string { return c.id }

// Deliver queues msg without blocking. A full buffer drops the message.
func (c *Conn) Deliver(msg *signaling.Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type, "room", msg.Room)
	}
}

// Serve runs both pumps and blocks until the connection ends.
func (c *Conn) Serve() {
	go c.WritePump()
	c.ReadPump()
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. All of this
// connection's joins, leaves and relays are issued from here, one at a
// time, in arrival order.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.maxSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg signaling.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("dropping malformed message", "error", err)
			continue
		}

		c.hub.Handle(c, &msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. It is the
// only writer on the connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
