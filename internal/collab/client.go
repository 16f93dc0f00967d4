package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
	sendBuffer = 256

	// maxRejected consecutive unusable frames end the connection.
	maxRejected = 8
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	logger    *slog.Logger
	ClientID  string
	Name      string
	DiagramID string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, clientID, name, diagramID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		logger:    hub.logger.With("client", clientID, "diagram", diagramID),
		ClientID:  clientID,
		Name:      name,
		DiagramID: diagramID,
	}
}

// ReadPump reads client messages until the connection ends. Frames are
// decoded and checked here so the hub only sees well-formed presence updates
// and operation submissions. A client that keeps sending frames the hub cannot
// use is disconnected.
func (c *Client) ReadPump(ctx context.Context) {
	status, reason := websocket.StatusNormalClosure, ""
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(status, reason)
	}()

	c.conn.SetReadLimit(maxMsgSize)

	rejected := 0
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.logger.Debug("read error", "error", err)
			}
			return
		}

		msg, err := decodeMessage(typ, data)
		if err != nil {
			rejected++
			rejectedMessages.Inc()
			c.logger.Warn("rejected message", "error", err, "rejected", rejected)
			c.Send(errorMessage(c.DiagramID, err))
			if rejected >= maxRejected {
				status, reason = websocket.StatusPolicyViolation, "too many invalid messages"
				return
			}
			continue
		}
		rejected = 0

		msg.ClientID = c.ClientID
		msg.DiagramID = c.DiagramID
		c.hub.handleMessage(c, msg)
	}
}

// decodeMessage parses one inbound frame. Only text frames carrying a
// presence update or an operation submission with a payload are accepted.
func decodeMessage(typ websocket.MessageType, data []byte) (*Message, error) {
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: binary frame", ErrInvalidMessage)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	switch msg.Type {
	case TypePresenceUpdate, TypeOpSubmit:
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMessage, msg.Type)
	}
	if p := bytes.TrimSpace(msg.Payload); len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil, fmt.Errorf("%w: %s without payload", ErrInvalidMessage, msg.Type)
	}
	return &msg, nil
}

// WritePump delivers queued messages and keeps the connection alive with
// pings. It ends when the hub closes the send queue, a write fails or ctx is
// done.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	status, reason := websocket.StatusNormalClosure, ""
	defer func() {
		ticker.Stop()
		c.conn.Close(status, reason)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// The hub dropped the client: room shut down or diagram missing.
				status, reason = websocket.StatusGoingAway, "diagram closed"
				return
			}
			if err := c.write(ctx, message); err != nil {
				c.logger.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, message []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, message)
}

// Send queues msg for the write pump. Messages are dropped when the buffer is
// full or the client has been closed.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal message", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
