package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// MessageStore implements store.MessageStore backed by Postgres.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{db: db} }

func (s *MessageStore) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (room_id, agent_id, content, role, participant_kind, participant_name,
		                       thinking, tool_call_situations, created_at, images, chat_session_id, game_time_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		msg.RoomID, msg.AgentID, msg.Content, msg.Role, msg.ParticipantKind, msg.ParticipantName,
		msg.Thinking, pq.Array(msg.ToolCallSituations), msg.CreatedAt, pq.Array(msg.Images), msg.ChatSessionID, msg.GameTimeSnapshot)

	out := *msg
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("pg: create message: %w", err)
	}
	return &out, nil
}

func (s *MessageStore) ListForRoom(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, agent_id, content, role, participant_kind, participant_name, thinking,
		       tool_call_situations, created_at, images, chat_session_id, game_time_snapshot
		FROM (
			SELECT * FROM messages WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		) recent ORDER BY created_at, id`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list messages for room: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) ListSince(ctx context.Context, roomID int64, sinceID int64) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, agent_id, content, role, participant_kind, participant_name, thinking,
		       tool_call_situations, created_at, images, chat_session_id, game_time_snapshot
		FROM messages WHERE room_id = $1 AND id > $2 ORDER BY id`, roomID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("pg: list messages since: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) LastAssistantMessageAt(ctx context.Context, roomID, agentID int64) (time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM messages WHERE room_id = $1 AND agent_id = $2 AND role = 'assistant'`,
		roomID, agentID).Scan(&at)
	if err != nil {
		return time.Time{}, fmt.Errorf("pg: last assistant message at: %w", err)
	}
	return at.Time, nil
}

func (s *MessageStore) DeleteForRoom(ctx context.Context, roomID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("pg: delete messages for room: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.AgentID, &m.Content, &m.Role, &m.ParticipantKind, &m.ParticipantName,
			&m.Thinking, pq.Array(&m.ToolCallSituations), &m.CreatedAt, pq.Array(&m.Images), &m.ChatSessionID, &m.GameTimeSnapshot); err != nil {
			return nil, fmt.Errorf("pg: scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
