package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nextlevelbuilder/goclaw-tape/internal/apperr"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// uniqueViolationCode is the Postgres SQLSTATE for a unique-constraint
// violation.
const uniqueViolationCode = "23505"

// RoomStore implements store.RoomStore backed by Postgres.
type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(db *sql.DB) *RoomStore { return &RoomStore{db: db} }

func (s *RoomStore) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rooms (owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, last_activity_at`,
		room.OwnerID, room.Name, room.WorldID, room.IsPaused, room.IsFinished, room.MaxInteractions, time.Now())

	out := *room
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.LastActivityAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, apperr.New(apperr.KindConflict, "pg.RoomStore.Create", err)
		}
		return nil, fmt.Errorf("pg: create room: %w", err)
	}
	return &out, nil
}

func (s *RoomStore) Get(ctx context.Context, id int64) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "pg.RoomStore.Get", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) ListForOwner(ctx context.Context, ownerID string) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms WHERE owner_id = $1 ORDER BY last_activity_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("pg: list rooms for owner: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *RoomStore) ListAll(ctx context.Context) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pg: list all rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

// ListActiveForScheduling returns rooms eligible for an autonomous round
// (§4.J step 1): unpaused, unfinished, world-less, active since the
// given time, most-recently-active first.
func (s *RoomStore) ListActiveForScheduling(ctx context.Context, activeSince time.Time, limit int) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, world_id, is_paused, is_finished, max_interactions, created_at, last_activity_at, last_read_at
		FROM rooms
		WHERE is_paused = false AND is_finished = false AND world_id IS NULL AND last_activity_at >= $1
		ORDER BY last_activity_at DESC
		LIMIT $2`, activeSince, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list active rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *RoomStore) UpdateFlags(ctx context.Context, id int64, maxInteractions *int, isPaused *bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET
			max_interactions = COALESCE($2, max_interactions),
			is_paused = COALESCE($3, is_paused)
		WHERE id = $1`, id, maxInteractions, isPaused)
	if err != nil {
		return fmt.Errorf("pg: update room flags: %w", err)
	}
	return nil
}

func (s *RoomStore) SetFinished(ctx context.Context, id int64, finished bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rooms SET is_finished = $2 WHERE id = $1`, id, finished)
	if err != nil {
		return fmt.Errorf("pg: set room finished: %w", err)
	}
	return nil
}

func (s *RoomStore) TouchLastActivity(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET last_activity_at = $2 WHERE id = $1 AND last_activity_at < $2`, id, at)
	if err != nil {
		return fmt.Errorf("pg: touch room activity: %w", err)
	}
	return nil
}

func (s *RoomStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete room: %w", err)
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
			return nil, fmt.Errorf("pg: scan room: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
