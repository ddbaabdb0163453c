package ws

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// ConnInfo is the handshake metadata captured when a connection opens.
type ConnInfo struct {
	ConnID      string
	UserID      int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one live websocket connection. All writes go through the send
// channel so the single write pump is the only goroutine touching the
// underlying connection for output.
type Client struct {
	conn *websocket.Conn
	info ConnInfo

	send      chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn: conn,
		info: info,
		send: make(chan models.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

// UserID returns the identity bound at handshake time.
func (c *Client) UserID() int { return c.info.UserID }

// Info returns the handshake metadata.
func (c *Client) Info() ConnInfo { return c.info }

// SendEvent queues an event for delivery. If the connection is closed or
// its buffer is full the event is dropped; the store is the source of
// truth and clients reconcile by refetching.
func (c *Client) SendEvent(event models.Event) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- event:
	case <-c.done:
	default:
		log.Printf("websocket send buffer full, dropping %s for user %d", event.Type, c.info.UserID)
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

// WritePump serializes all writes to the connection and keeps it alive with
// periodic pings. Runs until Close or a write failure.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				log.Printf("websocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadPump drains inbound frames so close and pong handling run, and
// applies a pong-refreshed deadline so an unclean disconnect is reaped
// instead of leaking its presence entry. Returns the close reason.
func (c *Client) ReadPump() string {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ""
			}
			return err.Error()
		}
	}
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
