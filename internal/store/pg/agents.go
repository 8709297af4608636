package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw-tape/internal/apperr"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// AgentStore implements store.AgentStore backed by Postgres.
type AgentStore struct {
	db *sql.DB
}

func NewAgentStore(db *sql.DB) *AgentStore { return &AgentStore{db: db} }

func (s *AgentStore) Get(ctx context.Context, id int64) (*model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, world_scope, "group", system_prompt, in_a_nutshell, characteristics,
		       recent_events, profile_image, priority, interrupt_every_turn, transparent, created_at
		FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "pg.AgentStore.Get", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get agent: %w", err)
	}
	return a, nil
}

// ListForRoom returns the agents seated in room, in joined_at (insertion)
// order, via the room_agent_links join table.
func (s *AgentStore) ListForRoom(ctx context.Context, roomID int64) ([]*model.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.world_scope, a."group", a.system_prompt, a.in_a_nutshell, a.characteristics,
		       a.recent_events, a.profile_image, a.priority, a.interrupt_every_turn, a.transparent, a.created_at
		FROM agents a
		JOIN room_agent_links l ON l.agent_id = a.id
		WHERE l.room_id = $1
		ORDER BY l.joined_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("pg: list room agents: %w", err)
	}
	defer rows.Close()

	var out []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var a model.Agent
	if err := row.Scan(&a.ID, &a.Name, &a.WorldScope, &a.Group, &a.SystemPrompt, &a.InANutshell, &a.Characteristics,
		&a.RecentEvents, &a.ProfileImage, &a.Priority, &a.InterruptEveryTurn, &a.Transparent, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
