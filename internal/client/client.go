package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.jetpack.io/typeid"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/hub"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/observability"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Leaves room for the
	// envelope around a maximum-length content field.
	maxMessageSize = domain.MaxContentLength + 1024

	sendBuffer = 256
)

// Disconnecter unbinds a connection from every room it joined.
type Disconnecter interface {
	Disconnect(c hub.Client)
}

// Client is one authenticated WebSocket connection.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	identity identity.Identity
	mux      *Mux
	rooms    Disconnecter
	log      *zap.Logger
	timeout  time.Duration
}

// New creates a Client bound to the given identity.
// timeout bounds the processing of each inbound event.
func New(conn *websocket.Conn, id identity.Identity, mux *Mux, rooms Disconnecter, log *zap.Logger, timeout time.Duration) (*Client, error) {
	tid, err := typeid.New("conn")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection id: %w", err)
	}
	return &Client{
		id:       tid.String(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		identity: id,
		mux:      mux,
		rooms:    rooms,
		log:      log.With(zap.String("conn_id", tid.String()), zap.String("user_id", id.UserID)),
		timeout:  timeout,
	}, nil
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the identity bound at upgrade.
func (c *Client) Identity() identity.Identity {
	return c.identity
}

// Send queues a message to be sent to the WebSocket client.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		// Client send buffer full, drop message.
		c.log.Warn("send buffer full, dropping message")
	}
}

// ReadPump reads events from the connection and dispatches them in order.
// Each event runs with ctx, the bound identity and the per-event timeout.
func (c *Client) ReadPump(ctx context.Context) {
	observability.WebSocketConnections.Inc()
	c.log.Info("connection opened")
	defer func() {
		c.rooms.Disconnect(c)
		close(c.done)
		c.conn.Close()
		observability.WebSocketConnections.Dec()
		c.log.Info("connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}
		c.handle(ctx, data)
	}
}

// WritePump writes messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	ctx = identity.WithIdentity(ctx, c.Identity())
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	evt, err := c.mux.Dispatch(ctx, c, data)
	if err == nil {
		observability.EventsTotal.WithLabelValues(evt, "ok").Inc()
		return
	}

	code := domain.CodeOf(err)
	observability.EventsTotal.WithLabelValues(evt, code).Inc()
	c.log.Debug("event rejected", zap.String("type", evt), zap.String("code", code), zap.Error(err))
	c.sendError(code, err)
}

// sendError acknowledges a rejected event to this connection only.
func (c *Client) sendError(code string, err error) {
	message := err.Error()
	switch code {
	case domain.CodeStore:
		message = "message could not be stored"
	case domain.CodeInternal:
		message = "internal error"
	}
	data, encErr := domain.Encode(domain.ErrorEvent{Type: domain.EvtError, Code: code, Message: message})
	if encErr != nil {
		c.log.Error("encode error event", zap.Error(encErr))
		return
	}
	c.Send(data)
}
