package wsbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
)

func deadline() time.Time { return time.Now().Add(writeWait) }

func newKeepaliveTicker() *time.Ticker { return time.NewTicker(pingPeriod) }

// Client wraps one upgraded WebSocket connection subscribed to a room's
// broadcast queue. Modeled on the teacher's gateway Client: a dedicated
// write pump draining the subscriber queue plus a read pump that only
// exists to observe pings/close so the connection's liveness is known.
type Client struct {
	conn   *websocket.Conn
	roomID int64
	userID string
	queue  *broadcast.Queue
}

func newClient(conn *websocket.Conn, roomID int64, userID string, queue *broadcast.Queue) *Client {
	return &Client{conn: conn, roomID: roomID, userID: userID, queue: queue}
}

// run blocks relaying broadcast frames to the client until the context
// is cancelled, the broadcaster shuts the room down, or the connection
// errors out. The caller is responsible for unregistering the client
// and unsubscribing its queue afterward.
func (c *Client) run(ctx context.Context) {
	done := make(chan struct{})
	go c.readPump(done)

	ticker := newKeepaliveTicker()
	defer ticker.Stop()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline()); err != nil {
				return
			}
		case frame, ok := <-c.queue.C():
			if !ok || frame == nil {
				c.sendJSON(broadcast.Event{Type: "shutdown"})
				return
			}
			if err := c.writeRaw(frame); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound application frames (this is a server-push
// transport) but must keep reading so pong/close control frames are
// processed by gorilla/websocket's internal dispatch.
func (c *Client) readPump(done chan<- struct{}) {
	defer close(done)
	c.conn.SetPongHandler(func(string) error { return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeRaw(data []byte) error {
	c.conn.SetWriteDeadline(deadline())
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) sendJSON(event broadcast.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = c.writeRaw(data)
}
