package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/ticket"
)

// keepaliveInterval matches the teacher's SSE keepalive cadence.
const keepaliveInterval = 15 * time.Second

// StreamHandler mints SSE tickets and serves the SSE stream endpoint
// (§6), grounded on backend/infrastructure/sse.py's connect/catch-up/
// keepalive flow and the teacher's internal/http SSE handler shape.
type StreamHandler struct {
	rooms     store.RoomStore
	tickets   *ticket.Manager
	broadcast *broadcast.Broadcaster
	streaming *streaming.Table
	verify    TokenVerifier
}

func NewStreamHandler(rooms store.RoomStore, tickets *ticket.Manager, b *broadcast.Broadcaster, st *streaming.Table, verify TokenVerifier) *StreamHandler {
	return &StreamHandler{rooms: rooms, tickets: tickets, broadcast: b, streaming: st, verify: verify}
}

func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms/{id}/stream/ticket", authMiddleware(h.verify, h.handleMintTicket))
	// The stream endpoint authenticates via the ticket query parameter,
	// not a bearer header — an EventSource cannot set custom headers —
	// so it is registered without authMiddleware.
	mux.HandleFunc("GET /rooms/{id}/stream", h.handleStream)
}

func (h *StreamHandler) handleMintTicket(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	identity := identityFromContext(r.Context())

	if _, err := h.rooms.Get(r.Context(), roomID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}

	tok, err := h.tickets.Create(identity.UserID, identity.Role, roomID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ticket": tok})
}

func (h *StreamHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	tok := r.URL.Query().Get("ticket")
	if _, valid := h.tickets.Validate(tok, roomID); !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired ticket"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "connected", map[string]any{"room_id": roomID})
	flusher.Flush()

	for agentID, snap := range h.streaming.SnapshotForRoom(roomID) {
		writeSSE(w, "catch_up", map[string]any{
			"agent_id":   agentID,
			"agent_name": snap.AgentName,
			"thinking":   snap.ThinkingText,
			"response":   snap.ResponseText,
			"narration":  snap.NarrationText,
		})
	}
	flusher.Flush()

	queue := h.broadcast.Subscribe(roomID)
	defer h.broadcast.Unsubscribe(roomID, queue)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			writeSSE(w, "keepalive", nil)
			flusher.Flush()
		case raw, ok := <-queue.C():
			if !ok || raw == nil {
				writeSSE(w, "shutdown", nil)
				flusher.Flush()
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, eventType string, data any) {
	payload, err := json.Marshal(broadcast.Event{Type: eventType, Data: data})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
