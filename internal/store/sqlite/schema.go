package sqlite

import (
	"database/sql"
	"fmt"
)

// schema is applied idempotently by EnsureSchema. Unlike the Postgres
// path (migrated via golang-migrate, see migrations/), the SQLite
// backend is development/test-only, so its schema is embedded directly
// rather than tracked through migration files — there is no production
// SQLite deployment whose history needs versioning.
const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id         TEXT NOT NULL,
	name             TEXT NOT NULL,
	world_id         INTEGER,
	is_paused        BOOLEAN NOT NULL DEFAULT 0,
	is_finished      BOOLEAN NOT NULL DEFAULT 0,
	max_interactions INTEGER,
	created_at       DATETIME NOT NULL,
	last_activity_at DATETIME NOT NULL,
	last_read_at     DATETIME,
	UNIQUE (owner_id, name, world_id)
);
CREATE INDEX IF NOT EXISTS idx_rooms_owner ON rooms (owner_id);

CREATE TABLE IF NOT EXISTS agents (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	name                 TEXT NOT NULL,
	world_scope          TEXT,
	"group"              TEXT,
	system_prompt        TEXT NOT NULL DEFAULT '',
	in_a_nutshell        TEXT,
	characteristics      TEXT,
	recent_events        TEXT,
	profile_image        TEXT,
	priority             INTEGER NOT NULL DEFAULT 0,
	interrupt_every_turn BOOLEAN NOT NULL DEFAULT 0,
	transparent          BOOLEAN NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL,
	UNIQUE (name, world_scope)
);

CREATE TABLE IF NOT EXISTS room_agent_links (
	room_id   INTEGER NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	agent_id  INTEGER NOT NULL REFERENCES agents (id) ON DELETE CASCADE,
	joined_at DATETIME NOT NULL,
	PRIMARY KEY (room_id, agent_id)
);
CREATE INDEX IF NOT EXISTS idx_room_agent_links_room ON room_agent_links (room_id, joined_at);

CREATE TABLE IF NOT EXISTS messages (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id              INTEGER NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	agent_id             INTEGER REFERENCES agents (id),
	content              TEXT NOT NULL,
	role                 TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	participant_kind     TEXT,
	participant_name     TEXT,
	thinking             TEXT,
	tool_call_situations TEXT,
	created_at           DATETIME NOT NULL,
	images               TEXT,
	chat_session_id      TEXT,
	game_time_snapshot   TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at, id);

CREATE TABLE IF NOT EXISTS room_agent_sessions (
	room_id    INTEGER NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	agent_id   INTEGER NOT NULL REFERENCES agents (id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (room_id, agent_id)
);
`

// EnsureSchema creates every table used by the sqlite store
// implementations if they do not already exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return nil
}
