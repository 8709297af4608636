package tape

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tracing"
)

// RoomCacheTTL and AgentsCacheTTL bound how long cached room/roster reads
// may go stale before the next write invalidates them explicitly.
const (
	RoomCacheTTL   = 30 * time.Second
	AgentsCacheTTL = 30 * time.Second
)

func (o *Orchestrator) getRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	v, err := o.cacheStore.GetOrSetAsync(ctx, cache.RoomKey(roomID), RoomCacheTTL, func(ctx context.Context) (any, error) {
		return o.rooms.Get(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Room), nil
}

func (o *Orchestrator) roomAgents(ctx context.Context, roomID int64) ([]*model.Agent, error) {
	v, err := o.cacheStore.GetOrSetAsync(ctx, cache.RoomAgentsKey(roomID), AgentsCacheTTL, func(ctx context.Context) (any, error) {
		return o.agents.ListForRoom(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Agent), nil
}

func (o *Orchestrator) roomAgentsByID(ctx context.Context, roomID int64) (map[int64]*model.Agent, error) {
	agents, err := o.roomAgents(ctx, roomID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	return byID, nil
}

// messagesSinceAgentLastResponse returns, oldest first, the messages that
// occurred in room after agentID's most recent assistant message (or all
// of them, bounded, if the agent has never responded there).
func (o *Orchestrator) messagesSinceAgentLastResponse(ctx context.Context, roomID, agentID int64) ([]*model.Message, error) {
	lastAt, err := o.messages.LastAssistantMessageAt(ctx, roomID, agentID)
	if err != nil {
		return nil, err
	}

	all, err := o.messages.ListForRoom(ctx, roomID, DefaultContextMessageLimit*2)
	if err != nil {
		return nil, err
	}

	if lastAt.IsZero() {
		return all, nil
	}

	out := make([]*model.Message, 0, len(all))
	for _, m := range all {
		if m.CreatedAt.After(lastAt) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *Orchestrator) saveSession(ctx context.Context, roomID, agentID int64, sessionID string) error {
	ctx, span := tracing.StartWriteQueueEnqueue(ctx, roomID, "session_upsert")
	defer span.End()
	_, err := o.writeQueue.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return nil, o.sessions.Upsert(ctx, &model.RoomAgentSession{
			RoomID: roomID, AgentID: agentID, SessionID: sessionID, UpdatedAt: time.Now(),
		})
	})
	return err
}

func (o *Orchestrator) persistMessage(ctx context.Context, roomID int64, agentID *int64, content, thinking string, participantKind *model.ParticipantKind) (*model.Message, error) {
	msg := &model.Message{
		RoomID:          roomID,
		AgentID:         agentID,
		Content:         content,
		ParticipantKind: participantKind,
	}
	if thinking != "" {
		msg.Thinking = &thinking
	}
	return o.persist(ctx, msg)
}

// persist fills in Role (from AgentID) and CreatedAt when unset, then
// writes msg through the Write Queue and touches the room's
// last-activity timestamp in the same serialized write.
func (o *Orchestrator) persist(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg.Role == "" {
		msg.Role = model.RoleUser
		if msg.AgentID != nil {
			msg.Role = model.RoleAssistant
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	roomID := msg.RoomID

	ctx, span := tracing.StartWriteQueueEnqueue(ctx, roomID, "message_create")
	defer span.End()

	result, err := o.writeQueue.Enqueue(ctx, func(ctx context.Context) (any, error) {
		created, err := o.messages.Create(ctx, msg)
		if err != nil {
			return nil, err
		}
		if err := o.rooms.TouchLastActivity(ctx, roomID, created.CreatedAt); err != nil {
			return nil, err
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Message), nil
}
