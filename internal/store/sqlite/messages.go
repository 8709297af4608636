package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// MessageStore implements store.MessageStore backed by SQLite. Unlike
// the Postgres implementation (native text[] columns via pq.Array),
// string-slice fields are stored as JSON text — SQLite has no array
// type — and marshalled/unmarshalled at the boundary.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{db: db} }

func (s *MessageStore) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	situations, err := marshalStrings(msg.ToolCallSituations)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal tool call situations: %w", err)
	}
	images, err := marshalStrings(msg.Images)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal images: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, agent_id, content, role, participant_kind, participant_name,
		                       thinking, tool_call_situations, created_at, images, chat_session_id, game_time_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.RoomID, msg.AgentID, msg.Content, msg.Role, msg.ParticipantKind, msg.ParticipantName,
		msg.Thinking, situations, msg.CreatedAt, images, msg.ChatSessionID, msg.GameTimeSnapshot)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create message: last insert id: %w", err)
	}
	out := *msg
	out.ID = id
	return &out, nil
}

func (s *MessageStore) ListForRoom(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, agent_id, content, role, participant_kind, participant_name, thinking,
		       tool_call_situations, created_at, images, chat_session_id, game_time_snapshot
		FROM (
			SELECT * FROM messages WHERE room_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) recent ORDER BY created_at, id`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages for room: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) ListSince(ctx context.Context, roomID int64, sinceID int64) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, agent_id, content, role, participant_kind, participant_name, thinking,
		       tool_call_situations, created_at, images, chat_session_id, game_time_snapshot
		FROM messages WHERE room_id = ? AND id > ? ORDER BY id`, roomID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages since: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) LastAssistantMessageAt(ctx context.Context, roomID, agentID int64) (time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM messages WHERE room_id = ? AND agent_id = ? AND role = 'assistant'`,
		roomID, agentID).Scan(&at)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: last assistant message at: %w", err)
	}
	return at.Time, nil
}

func (s *MessageStore) DeleteForRoom(ctx context.Context, roomID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("sqlite: delete messages for room: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var situations, images sql.NullString
		if err := rows.Scan(&m.ID, &m.RoomID, &m.AgentID, &m.Content, &m.Role, &m.ParticipantKind, &m.ParticipantName,
			&m.Thinking, &situations, &m.CreatedAt, &images, &m.ChatSessionID, &m.GameTimeSnapshot); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		var err error
		if m.ToolCallSituations, err = unmarshalStrings(situations); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal tool call situations: %w", err)
		}
		if m.Images, err = unmarshalStrings(images); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal images: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func marshalStrings(ss []string) (*string, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalStrings(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(ns.String), &ss); err != nil {
		return nil, err
	}
	return ss, nil
}
