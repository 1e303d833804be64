package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client wraps one websocket connection: a read pump dispatching inbound
// events and a write pump draining the buffered send channel.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan Event
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan Event, sendBuffer),
		logger: logger,
	}
}

// ID returns the opaque session id.
func (c *Client) ID() string { return c.id }

// Deliver queues an event for the write pump. It never blocks: when the
// buffer is full the event is dropped and counted, so one slow reader cannot
// stall a broadcast.
func (c *Client) Deliver(evt Event) {
	select {
	case c.send <- evt:
	default:
		eventsDropped.Inc()
		c.logger.Warn("dropping event for slow client",
			zap.String("session_id", c.id),
			zap.String("event", evt.Event))
	}
}

// readPump reads envelopes off the socket and hands them to dispatch. It
// returns when the connection closes or misbehaves.
func (c *Client) readPump(dispatch func(Event)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.String("session_id", c.id), zap.Error(err))
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(message, &evt); err != nil {
			c.logger.Warn("malformed event envelope",
				zap.String("session_id", c.id),
				zap.ByteString("payload", message),
				zap.Error(err))
			continue
		}
		dispatch(evt)
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	// The send channel is never closed: a broadcast snapshot may still hold
	// this client briefly after removal, and Deliver on a closed channel
	// would panic. The pump exits on the first failed write instead.
	for {
		select {
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
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
