package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// SessionStore implements store.RoomAgentSessionStore backed by SQLite,
// with the same in-memory read cache as the Postgres implementation.
type SessionStore struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[[2]int64]*model.RoomAgentSession
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, cache: make(map[[2]int64]*model.RoomAgentSession)}
}

func (s *SessionStore) Get(ctx context.Context, roomID, agentID int64) (*model.RoomAgentSession, error) {
	key := [2]int64{roomID, agentID}

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	var sess model.RoomAgentSession
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, agent_id, session_id, updated_at
		FROM room_agent_sessions WHERE room_id = ? AND agent_id = ?`, roomID, agentID).
		Scan(&sess.RoomID, &sess.AgentID, &sess.SessionID, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get room agent session: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = &sess
	s.mu.Unlock()
	return &sess, nil
}

func (s *SessionStore) Upsert(ctx context.Context, sess *model.RoomAgentSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_agent_sessions (room_id, agent_id, session_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room_id, agent_id) DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`,
		sess.RoomID, sess.AgentID, sess.SessionID, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: upsert room agent session: %w", err)
	}

	s.mu.Lock()
	s.cache[[2]int64{sess.RoomID, sess.AgentID}] = sess
	s.mu.Unlock()
	return nil
}
