package stream

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	ingestTimeout  = 10 * time.Second
)

var (
	errNotSubscribed = errors.New("send an init event before readings")
	errReadOnly      = errors.New("stream is read-only")
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // Buffered channel of outbound messages.
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
}

// readPump decodes inbound events until the connection closes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("stream read error", "remote", c.conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			c.replyError(err)
			continue
		}
		c.handle(ctx, ev)
	}
}

func (c *Client) handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case InitEvent:
		if c.hub.subscribe(c, e.UserID) {
			c.hub.reply(c, Message{Type: EventInit, Data: map[string]string{"user_id": e.UserID}})
		}

	case ReadingEvent:
		userID := c.hub.userOf(c)
		if userID == "" {
			c.replyError(errNotSubscribed)
			return
		}
		if c.hub.ingester == nil {
			c.replyError(errReadOnly)
			return
		}

		reading := e.Reading(userID)
		ingestCtx, cancel := context.WithTimeout(ctx, ingestTimeout)
		defer cancel()
		if _, err := c.hub.ingester.Ingest(ingestCtx, &reading); err != nil {
			c.hub.logger.Error("stream ingest failed", "user", userID, "device", reading.DeviceID, "error", err)
			c.replyError(err)
		}
	}
}

func (c *Client) replyError(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, model.ErrInvalidValue), errors.Is(err, errNotSubscribed), errors.Is(err, errReadOnly):
	default:
		msg = "internal error"
	}
	c.hub.reply(c, Message{Type: EventError, Data: map[string]string{"message": msg}})
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
