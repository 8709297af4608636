// Package wsbridge relays the Event Broadcaster (§4.D) to WebSocket
// clients as a second transport alongside SSE. Grounded on the
// teacher's internal/gateway/server.go: the same websocket.Upgrader
// with a CheckOrigin whitelist, the same registerClient/unregisterClient
// map-of-clients bookkeeping, and a per-user sliding-window connection
// rate limiter in the style of the pack's per-user RateLimiter
// (other_examples: ashureev-shsh-labs internal/agent handler.go).
//
// Unlike the gateway's bidirectional RPC socket, a tape WebSocket
// connection is read-only from the client's point of view: the only
// inbound frames it watches for are pings and the close handshake.
package wsbridge

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/ticket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Bridge upgrades authenticated room connections to WebSocket and
// relays broadcast.Event frames to them.
type Bridge struct {
	log       *slog.Logger
	rooms     store.RoomStore
	streaming *streaming.Table
	tickets   *ticket.Manager
	broadcast *broadcast.Broadcaster

	upgrader websocket.Upgrader
	limiter  *RateLimiter

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Config configures a Bridge.
type Config struct {
	// AllowedOrigins whitelists the WebSocket handshake Origin header.
	// Empty means allow all (dev mode), matching the teacher's
	// backward-compatible default.
	AllowedOrigins []string
	// ConnectLimit and ConnectWindow bound how many upgrade attempts a
	// single user may make; zero ConnectLimit disables the limiter.
	ConnectLimit  int
	ConnectWindow time.Duration
}

// New creates a Bridge.
func New(log *slog.Logger, rooms store.RoomStore, streamTable *streaming.Table, tickets *ticket.Manager, b *broadcast.Broadcaster, cfg Config) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	br := &Bridge{
		log:       log.With("component", "wsbridge"),
		rooms:     rooms,
		streaming: streamTable,
		tickets:   tickets,
		broadcast: b,
		clients:   make(map[*Client]struct{}),
	}
	br.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     br.checkOrigin(cfg.AllowedOrigins),
	}
	if cfg.ConnectLimit > 0 {
		window := cfg.ConnectWindow
		if window <= 0 {
			window = time.Minute
		}
		br.limiter = NewRateLimiter(cfg.ConnectLimit, window)
	}
	return br
}

// checkOrigin returns a websocket.Upgrader.CheckOrigin func validating
// the handshake Origin against allowed. Empty Origin (non-browser
// clients) is always allowed, same as the teacher.
func (b *Bridge) checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if origin == a || a == "*" {
				return true
			}
		}
		b.log.Warn("websocket origin rejected", "origin", origin)
		return false
	}
}

// RegisterRoutes registers the ticket-authenticated WebSocket endpoint.
// Like the SSE stream endpoint, it is deliberately not wrapped in
// authMiddleware: a browser WebSocket handshake cannot set bearer
// headers, so auth flows through the same single-use ticket minted by
// POST /rooms/{id}/stream/ticket.
func (b *Bridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /rooms/{id}/ws", b.handleUpgrade)
}

func (b *Bridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	tok := r.URL.Query().Get("ticket")
	data, ok := b.tickets.Validate(tok, roomID)
	if !ok {
		http.Error(w, "invalid or expired ticket", http.StatusUnauthorized)
		return
	}

	if b.limiter != nil && !b.limiter.Allow(data.UserID) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	if _, err := b.rooms.Get(r.Context(), roomID); err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error("websocket upgrade failed", "error", err)
		return
	}

	queue := b.broadcast.Subscribe(roomID)
	client := newClient(conn, roomID, data.UserID, queue)

	b.register(client)
	defer func() {
		b.unregister(client)
		b.broadcast.Unsubscribe(roomID, queue)
	}()

	if snap := b.streaming.SnapshotForRoom(roomID); len(snap) > 0 {
		client.sendJSON(broadcast.Event{Type: "catch_up", Data: snap})
	}

	client.run(r.Context())
}

func (b *Bridge) register(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Bridge) unregister(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
	c.conn.Close()
}

// ClientCount reports how many WebSocket clients are currently connected.
func (b *Bridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func parseRoomID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
