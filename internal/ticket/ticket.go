// Package ticket issues short-lived, single-use bearer tokens for SSE
// authentication. A native EventSource cannot set custom headers, so the
// flow is: authenticated POST mints a ticket, the SSE GET redeems it.
//
// Grounded on backend/infrastructure/sse_ticket.py's SSETicketManager:
// crypto-random 32-byte URL-safe tokens, a 60s TTL, single-use (deleted
// on successful validation), and an opportunistic sweep that only runs
// when create/validate is called and 5 minutes have elapsed since the
// last sweep.
package ticket

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// TTL is how long a minted ticket remains valid.
const TTL = 60 * time.Second

// CleanupInterval is the minimum time between opportunistic sweeps.
const CleanupInterval = 5 * time.Minute

// Data is the identity bound to a ticket at mint time.
type Data struct {
	UserID    string
	Role      string
	RoomID    int64
	createdAt time.Time
}

// Manager issues and redeems single-use SSE tickets.
type Manager struct {
	mu           sync.Mutex
	tickets      map[string]Data
	lastCleanup  time.Time
	now          func() time.Time
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{
		tickets: make(map[string]Data),
		now:     time.Now,
	}
}

// Create mints a new single-use ticket scoped to (userID, role, roomID).
func (m *Manager) Create(userID, role string, roomID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeCleanupLocked()

	token, err := randomToken()
	if err != nil {
		return "", err
	}
	m.tickets[token] = Data{
		UserID:    userID,
		Role:      role,
		RoomID:    roomID,
		createdAt: m.now(),
	}
	return token, nil
}

// Validate consumes a ticket (single-use) and checks it against roomID and
// the TTL. Returns (Data, true) on success; (Data{}, false) otherwise —
// including on a second call with the same token.
func (m *Manager) Validate(token string, roomID int64) (Data, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeCleanupLocked()

	data, ok := m.tickets[token]
	if !ok {
		return Data{}, false
	}
	delete(m.tickets, token) // single-use regardless of outcome below

	if m.now().Sub(data.createdAt) > TTL {
		return Data{}, false
	}
	if data.RoomID != roomID {
		return Data{}, false
	}
	return data, true
}

func (m *Manager) maybeCleanupLocked() {
	now := m.now()
	if !m.lastCleanup.IsZero() && now.Sub(m.lastCleanup) < CleanupInterval {
		return
	}
	m.lastCleanup = now
	for token, data := range m.tickets {
		if now.Sub(data.createdAt) > TTL {
			delete(m.tickets, token)
		}
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
