package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tape"
	"github.com/nextlevelbuilder/goclaw-tape/internal/ticket"
	"github.com/nextlevelbuilder/goclaw-tape/internal/wsbridge"
)

// Deps bundles everything the HTTP surface needs to register its routes.
type Deps struct {
	Log *slog.Logger

	Stores    *store.Stores
	Orch      *tape.Orchestrator
	Tickets   *ticket.Manager
	Broadcast *broadcast.Broadcaster
	Streaming *streaming.Table

	Verify      TokenVerifier
	LoginConfig LoginConfig
	Issuer      *TokenIssuer

	// WSBridge is optional: when set, its WebSocket endpoint is
	// registered alongside the SSE stream as a second transport for
	// the same broadcast events (§9 ambient stack).
	WSBridge *wsbridge.Bridge
}

// NewMux builds the full §6 HTTP surface: room CRUD, message send/
// history/poll/clear, SSE ticket mint + stream, and the public auth
// endpoints. Grounded on the teacher's gateway.Server.BuildMux (one mux,
// one RegisterRoutes call per resource handler).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	NewRoomsHandler(d.Stores.Rooms, d.Verify).RegisterRoutes(mux)
	NewMessagesHandler(d.Stores.Messages, d.Orch, d.Verify).RegisterRoutes(mux)
	NewStreamHandler(d.Stores.Rooms, d.Tickets, d.Broadcast, d.Streaming, d.Verify).RegisterRoutes(mux)
	NewLoginHandler(d.LoginConfig, d.Issuer).RegisterRoutes(mux)
	if d.WSBridge != nil {
		d.WSBridge.RegisterRoutes(mux)
	}

	return withCORS(mux)
}

// withCORS echoes back the caller's Origin on every response, the same
// permissive-with-credentials policy the original backend's ASGI
// middleware applies, and short-circuits OPTIONS preflights before they
// reach auth or routing.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
