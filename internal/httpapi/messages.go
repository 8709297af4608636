package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tape"
)

// MessagesHandler serves message send/history/poll/clear (§6).
type MessagesHandler struct {
	messages store.MessageStore
	orch     *tape.Orchestrator
	verify   TokenVerifier
}

func NewMessagesHandler(messages store.MessageStore, orch *tape.Orchestrator, verify TokenVerifier) *MessagesHandler {
	return &MessagesHandler{messages: messages, orch: orch, verify: verify}
}

func (h *MessagesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms/{id}/messages/send", authMiddleware(h.verify, h.handleSend))
	mux.HandleFunc("GET /rooms/{id}/messages", authMiddleware(h.verify, h.handleList))
	mux.HandleFunc("GET /rooms/{id}/messages/poll", authMiddleware(h.verify, h.handlePoll))
	mux.HandleFunc("DELETE /rooms/{id}/messages", authMiddleware(h.verify, h.handleClear))
}

type sendMessageRequest struct {
	Content         string                 `json:"content"`
	ParticipantKind *model.ParticipantKind `json:"participant_kind,omitempty"`
	ParticipantName *string                `json:"participant_name,omitempty"`
	Images          []string               `json:"images,omitempty"`
}

func (h *MessagesHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content required"})
		return
	}

	err := h.orch.HandleUserMessage(r.Context(), tape.UserMessageInput{
		RoomID:          roomID,
		Content:         req.Content,
		ParticipantKind: req.ParticipantKind,
		ParticipantName: req.ParticipantName,
		Images:          req.Images,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *MessagesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := h.messages.ListForRoom(r.Context(), roomID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessagesHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	sinceID, err := strconv.ParseInt(r.URL.Query().Get("since_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since_id"})
		return
	}
	msgs, err := h.messages.ListSince(r.Context(), roomID, sinceID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessagesHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	if err := h.orch.InterruptRoomProcessing(r.Context(), roomID, false); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := h.messages.DeleteForRoom(r.Context(), roomID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
