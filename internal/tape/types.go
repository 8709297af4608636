package tape

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// TurnOutcome is the explicit result of one agent turn, replacing the
// exception-based control flow (skip, interrupt) the source used (§9).
type TurnOutcome int

const (
	Responded TurnOutcome = iota
	Skipped
	Cancelled
	Errored
)

func (o TurnOutcome) String() string {
	switch o {
	case Responded:
		return "responded"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// TurnDescriptor is one entry of a Tape: which agent, in which round, and
// whether this is a follow-up turn.
type TurnDescriptor struct {
	AgentID         int64
	IsFollowUpRound bool
	RoundIndex      int
}

// Tape is an ordered sequence of turns executed linearly within one
// round (§3).
type Tape []TurnDescriptor

// TurnResult pairs a descriptor with the outcome its execution produced.
type TurnResult struct {
	Descriptor TurnDescriptor
	Outcome    TurnOutcome
	Err        error
}

// GenerationContext is the Response Generator's input (§4.H).
type GenerationContext struct {
	RoomID int64
	Agent  *model.Agent

	// UserMessage is nil for a follow-up round.
	UserMessage *string

	// Hidden marks this generation's response text as withheld from the
	// streaming snapshot (e.g. an NPC reaction the UI should not echo).
	Hidden bool

	OutputFormat *llmruntime.OutputSchema
}

// OptionsBuilder computes the llmruntime.Options for one agent turn,
// including the model, allowed-tool list, and MCP server set (§6). The
// core treats agent/world configuration as already-parsed input (a
// Non-goal per §1), so this is an injected function rather than a
// concrete loader.
type OptionsBuilder func(ctx context.Context, gctx GenerationContext, resume string) (llmruntime.Options, error)

// Config holds the tunable constants named in §4.I/§4.J.
type Config struct {
	MaxTotalMessages   int
	MaxFollowUpRounds  int
	MaxConcurrentRooms int
	SchedulerInterval  time.Duration
	RoomActiveWindow   time.Duration
	CacheSweepInterval time.Duration
}

// DefaultConfig returns the constants named explicitly in the spec.
func DefaultConfig() Config {
	return Config{
		MaxTotalMessages:   10,
		MaxFollowUpRounds:  2,
		MaxConcurrentRooms: 5,
		SchedulerInterval:  2 * time.Second,
		RoomActiveWindow:   5 * time.Minute,
		CacheSweepInterval: 5 * time.Minute,
	}
}
