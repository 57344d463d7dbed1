package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/Pairlink/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the server.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size accepted from the server.
	maxMessageSize = 64 * 1024

	// Reconnect backoff bounds.
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("signaling channel closed")

// Notice reports a change of the underlying connection.
type Notice int

const (
	// NoticeDisconnected means the connection dropped; the server has
	// already treated it as a leave from every room.
	NoticeDisconnected Notice = iota

	// NoticeReconnected means a new connection is up. It has a new identity
	// on the server and no room memberships.
	NoticeReconnected

	// NoticeLost means reconnection gave up. Incoming is closed after it.
	NoticeLost
)

func (n Notice) String() string {
	switch n {
	case NoticeDisconnected:
		return "disconnected"
	case NoticeReconnected:
		return "reconnected"
	case NoticeLost:
		return "lost"
	}
	return "unknown"
}

// ClientOptions tunes a Client. Zero values use defaults.
type ClientOptions struct {
	// MaxRetries bounds reconnect attempts after a drop. Zero means 5,
	// negative disables reconnection.
	MaxRetries int

	// Dialer overrides the WebSocket dialer. When nil, a dialer that
	// resolves hosts through the dns package is used.
	Dialer *websocket.Dialer

	Logger *slog.Logger
}

// Client is the participant side of the signaling channel: one WebSocket
// to the coordinator, ordered per connection, redialled on failure.
type Client struct {
	serverURL  string
	dialer     *websocket.Dialer
	maxRetries int
	logger     *slog.Logger

	incoming chan *Message
	outgoing chan *Message
	notices  chan Notice
	done     chan struct{}

	closeOnce sync.Once
}

// NewClient creates a signaling client for the given ws:// or wss:// URL.
func NewClient(serverURL string, opts ClientOptions) *Client {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = newDialer()
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		serverURL:  serverURL,
		dialer:     dialer,
		maxRetries: retries,
		logger:     logger,
		incoming:   make(chan *Message, 32),
		outgoing:   make(chan *Message, 64),
		notices:    make(chan Notice, 4),
		done:       make(chan struct{}),
	}
}

// newDialer returns a dialer that resolves through dns.Lookup so that a
// broken system resolver does not prevent signaling.
func newDialer() *websocket.Dialer {
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ip, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}

		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
	return &dialer
}

// Connect dials the server and starts the connection loop. The first dial
// is not retried: an unreachable server is reported to the caller.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := url.Parse(c.serverURL); err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	go c.run(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return conn, nil
}

// run serves one connection at a time until Close or until reconnection
// gives up.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.incoming)

	for {
		c.serve(conn)

		select {
		case <-c.done:
			return
		default:
		}

		c.logger.Warn("signaling connection dropped", "server", c.serverURL)
		c.notify(NoticeDisconnected)

		conn = c.redial()
		if conn == nil {
			c.notify(NoticeLost)
			return
		}

		c.discardQueued()
		c.logger.Info("signaling connection restored", "server", c.serverURL)
		c.notify(NoticeReconnected)
	}
}

// serve pumps one connection until it fails or the client is closed.
func (c *Client) serve(conn *websocket.Conn) {
	readDone := make(chan struct{})
	go c.readPump(conn, readDone)

	c.writePump(conn, readDone)
	conn.Close()
	<-readDone
}

// readPump reads messages from the connection in arrival order.
func (c *Client) readPump(conn *websocket.Conn, readDone chan<- struct{}) {
	defer close(readDone)

	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("signaling read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("dropping malformed signaling message", "error", err)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued messages and sends periodic pings. It is the only
// writer on the connection.
func (c *Client) writePump(conn *websocket.Conn, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Debug("signaling write failed", "type", msg.Type, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readDone:
			return

		case <-c.done:
			c.flushQueued(conn)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flushQueued writes whatever is still queued, so that a leave sent right
// before Close reaches the server.
func (c *Client) flushQueued(conn *websocket.Conn) {
	for {
		select {
		case msg := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// redial retries the connection with exponential backoff. It returns nil
// when retries are exhausted or the client is closed.
func (c *Client) redial() *websocket.Conn {
	delay := initialBackoff
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		select {
		case <-time.After(delay):
		case <-c.done:
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		conn, err := c.dial(ctx)
		cancel()
		if err == nil {
			return conn
		}

		c.logger.Debug("signaling redial failed", "attempt", attempt, "error", err)
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	return nil
}

// discardQueued drops messages queued while disconnected. They were
// addressed to rooms the new connection is not a member of.
func (c *Client) discardQueued() {
	for {
		select {
		case <-c.outgoing:
		default:
			return
		}
	}
}

func (c *Client) notify(n Notice) {
	select {
	case c.notices <- n:
	case <-c.done:
	}
}

// Send queues a message for the server. Delivery is at most once.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel of messages from the server. It is closed
// when the client stops.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Notices returns connection state changes.
func (c *Client) Notices() <-chan Notice {
	return c.notices
}

// Close sends a close frame and stops the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
