package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/apperr"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// RoomStore implements store.RoomStore backed by SQLite.
type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(db *sql.DB) *RoomStore { return &RoomStore{db: db} }

func (s *RoomStore) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.OwnerID, room.Name, room.WorldID, room.IsPaused, room.IsFinished, room.MaxInteractions, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, apperr.New(apperr.KindConflict, "sqlite.RoomStore.Create", err)
		}
		return nil, fmt.Errorf("sqlite: create room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create room: last insert id: %w", err)
	}
	out := *room
	out.ID = id
	out.CreatedAt = now
	out.LastActivityAt = now
	return &out, nil
}

func (s *RoomStore) Get(ctx context.Context, id int64) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "sqlite.RoomStore.Get", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) ListForOwner(ctx context.Context, ownerID string) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms WHERE owner_id = ? ORDER BY last_activity_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rooms for owner: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *RoomStore) ListAll(ctx context.Context) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list all rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *RoomStore) ListActiveForScheduling(ctx context.Context, activeSince time.Time, limit int) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms
		WHERE is_paused = 0 AND is_finished = 0 AND world_id IS NULL AND last_activity_at >= ?
		ORDER BY last_activity_at DESC
		LIMIT ?`, activeSince, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *RoomStore) UpdateFlags(ctx context.Context, id int64, maxInteractions *int, isPaused *bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET
			max_interactions = COALESCE(?, max_interactions),
			is_paused = COALESCE(?, is_paused)
		WHERE id = ?`, maxInteractions, isPaused, id)
	if err != nil {
		return fmt.Errorf("sqlite: update room flags: %w", err)
	}
	return nil
}

func (s *RoomStore) SetFinished(ctx context.Context, id int64, finished bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rooms SET is_finished = ? WHERE id = ?`, finished, id)
	if err != nil {
		return fmt.Errorf("sqlite: set room finished: %w", err)
	}
	return nil
}

func (s *RoomStore) TouchLastActivity(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET last_activity_at = ? WHERE id = ? AND last_activity_at < ?`, at, id, at)
	if err != nil {
		return fmt.Errorf("sqlite: touch room activity: %w", err)
	}
	return nil
}

func (s *RoomStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete room: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*model.Room, error) {
	var r model.Room
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.WorldID, &r.IsPaused, &r.IsFinished, &r.MaxInteractions, &r.CreatedAt, &r.LastActivityAt, &r.LastReadAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRooms(rows *sql.Rows) ([]*model.Room, error) {
	var out []*model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan room: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
