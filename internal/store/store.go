// Package store declares the persistence interfaces the tape scheduler,
// response generator, and HTTP surface depend on. Concrete
// implementations live in store/pg (Postgres, production) and
// store/sqlite (single-file, development/test).
//
// Grounded on the teacher's internal/store/session_store.go interface
// style (narrow, one method per access pattern, context-first) adapted
// from its chat-session domain to this spec's room/agent/message domain.
package store

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// RoomStore persists Room records.
type RoomStore interface {
	Create(ctx context.Context, room *model.Room) (*model.Room, error)
	Get(ctx context.Context, id int64) (*model.Room, error)
	ListForOwner(ctx context.Context, ownerID string) ([]*model.Room, error)
	ListAll(ctx context.Context) ([]*model.Room, error)
	// ListActiveForScheduling returns rooms eligible for an autonomous
	// round per §4.J: not paused, not finished, active within the given
	// window, world-less, ordered by last_activity_at desc, capped at
	// limit.
	ListActiveForScheduling(ctx context.Context, activeSince time.Time, limit int) ([]*model.Room, error)
	UpdateFlags(ctx context.Context, id int64, maxInteractions *int, isPaused *bool) error
	SetFinished(ctx context.Context, id int64, finished bool) error
	TouchLastActivity(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// AgentStore persists Agent records and room roster membership.
type AgentStore interface {
	Get(ctx context.Context, id int64) (*model.Agent, error)
	// ListForRoom returns the agents seated in room, in insertion
	// (joined_at) order; tape turn ordering re-sorts this by priority.
	ListForRoom(ctx context.Context, roomID int64) ([]*model.Agent, error)
}

// MessageStore persists Message records.
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	// ListForRoom returns up to limit of the most recent messages in
	// room, oldest first.
	ListForRoom(ctx context.Context, roomID int64, limit int) ([]*model.Message, error)
	// ListSince returns messages in room with id > sinceID, oldest
	// first, for the incremental poll endpoint.
	ListSince(ctx context.Context, roomID int64, sinceID int64) ([]*model.Message, error)
	// LastAssistantMessageAt returns the creation time of agent's most
	// recent assistant message in room, or the zero time if it has
	// never responded there.
	LastAssistantMessageAt(ctx context.Context, roomID, agentID int64) (time.Time, error)
	DeleteForRoom(ctx context.Context, roomID int64) error
}

// RoomAgentSessionStore persists the per-(room,agent) LLM session-resume
// record (§3 RoomAgentSession).
type RoomAgentSessionStore interface {
	// Get returns (nil, nil) when no session has been recorded yet for
	// (roomID, agentID), rather than an error — the caller reads that as
	// "no resume available" and proceeds with a fresh session.
	Get(ctx context.Context, roomID, agentID int64) (*model.RoomAgentSession, error)
	Upsert(ctx context.Context, sess *model.RoomAgentSession) error
}

// Stores bundles one concrete implementation of each interface, built by
// either store/pg or store/sqlite's factory.
type Stores struct {
	Rooms    RoomStore
	Agents   AgentStore
	Messages MessageStore
	Sessions RoomAgentSessionStore
}
