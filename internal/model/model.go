// Package model defines the core persisted entities the tape scheduler,
// client pool, and write queue operate on: rooms, agents, messages, and
// the per-(room,agent) session-resume record.
package model

import "time"

// Role is a Message's conversational role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParticipantKind refines who produced a user-role message.
type ParticipantKind string

const (
	ParticipantUser             ParticipantKind = "user"
	ParticipantCharacter        ParticipantKind = "character"
	ParticipantSituationBuilder ParticipantKind = "situation_builder"
	ParticipantSystem           ParticipantKind = "system"
)

// Room is a chat or TRPG game world shared by a roster of agents.
type Room struct {
	ID              int64
	OwnerID         string
	Name            string
	WorldID         *int64
	IsPaused        bool
	IsFinished      bool
	MaxInteractions *int
	CreatedAt       time.Time
	LastActivityAt  time.Time
	LastReadAt      *time.Time
}

// Agent is one autonomous conversational participant.
type Agent struct {
	ID                 int64
	Name               string
	WorldScope         *string
	Group              *string
	SystemPrompt       string
	InANutshell        *string
	Characteristics    *string
	RecentEvents       *string
	ProfileImage       *string
	Priority           int
	InterruptEveryTurn bool
	Transparent        bool
	CreatedAt          time.Time
}

// Message is one turn of conversation, persisted durably.
type Message struct {
	ID               int64
	RoomID           int64
	AgentID          *int64
	Content          string
	Role             Role
	ParticipantKind  *ParticipantKind
	ParticipantName  *string
	Thinking         *string
	ToolCallSituations []string // JSON array of "anthropic_calls" situations
	CreatedAt        time.Time
	Images           []string
	ChatSessionID    *string
	GameTimeSnapshot *string
}

// RoomAgentSession lets the LLM runtime resume an agent's context in a
// room instead of replaying the full history on every turn.
type RoomAgentSession struct {
	RoomID    int64
	AgentID   int64
	SessionID string
	UpdatedAt time.Time
}

// RoomAgentLink records that an agent is seated in a room.
type RoomAgentLink struct {
	RoomID  int64
	AgentID int64
	JoinedAt time.Time
}

// SkipMarker is the canonical content string written when an agent
// voluntarily skips its turn, so the scheduler can detect all-skip
// termination purely by reading persisted content back.
const SkipMarker = "[agent skipped this turn]"
