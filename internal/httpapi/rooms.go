package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/goclaw-tape/internal/apperr"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
)

// RoomsHandler serves room CRUD (§6).
type RoomsHandler struct {
	rooms  store.RoomStore
	verify TokenVerifier
}

func NewRoomsHandler(rooms store.RoomStore, verify TokenVerifier) *RoomsHandler {
	return &RoomsHandler{rooms: rooms, verify: verify}
}

func (h *RoomsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", authMiddleware(h.verify, h.handleCreate))
	mux.HandleFunc("GET /rooms", authMiddleware(h.verify, h.handleList))
	mux.HandleFunc("GET /rooms/{id}", authMiddleware(h.verify, h.handleGet))
	mux.HandleFunc("PATCH /rooms/{id}", authMiddleware(h.verify, h.handleUpdate))
	mux.HandleFunc("DELETE /rooms/{id}", authMiddleware(h.verify, h.handleDelete))
}

type createRoomRequest struct {
	Name    string `json:"name"`
	WorldID *int64 `json:"world_id,omitempty"`
}

func (h *RoomsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	room, err := h.rooms.Create(r.Context(), &model.Room{
		OwnerID: identity.UserID,
		Name:    req.Name,
		WorldID: req.WorldID,
	})
	if apperr.Is(err, apperr.KindConflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "room already exists"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var rooms []*model.Room
	var err error
	if identity.Role == "admin" {
		rooms, err = h.rooms.ListAll(r.Context())
	} else {
		rooms, err = h.rooms.ListForOwner(r.Context(), identity.UserID)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	room, err := h.rooms.Get(r.Context(), id)
	if apperr.Is(err, apperr.KindNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type updateRoomRequest struct {
	MaxInteractions *int  `json:"max_interactions,omitempty"`
	IsPaused        *bool `json:"is_paused,omitempty"`
}

func (h *RoomsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	var req updateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := h.rooms.UpdateFlags(r.Context(), id, req.MaxInteractions, req.IsPaused); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	room, err := h.rooms.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity.Role != "admin" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
		return
	}
	id, ok := parseRoomID(w, r)
	if !ok {
		return
	}
	if err := h.rooms.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRoomID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
