package tape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streamparser"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tracing"
	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

// GenerateTurn drives one agent turn end to end (§4.H): build the
// conversation context, acquire a pooled client, stream the generation,
// fold events through the Stream Parser, broadcast deltas, and persist
// the result.
func (o *Orchestrator) GenerateTurn(ctx context.Context, gctx GenerationContext) (TurnOutcome, error) {
	task := taskid.New(gctx.RoomID, gctx.Agent.ID)

	if _, err := o.getRoom(ctx, gctx.RoomID); err != nil {
		return Errored, fmt.Errorf("generate turn: load room: %w", err)
	}

	followUps, err := o.messagesSinceAgentLastResponse(ctx, gctx.RoomID, gctx.Agent.ID)
	if err != nil {
		return Errored, fmt.Errorf("generate turn: load follow-up messages: %w", err)
	}
	if gctx.UserMessage == nil && len(followUps) == 0 {
		return Skipped, nil
	}

	agents, err := o.roomAgentsByID(ctx, gctx.RoomID)
	if err != nil {
		return Errored, fmt.Errorf("generate turn: load room agents: %w", err)
	}

	built := BuildContext(ContextInput{
		Messages:   followUps,
		Agents:     agents,
		AgentCount: len(agents),
	})
	prompt := built.Text
	if gctx.UserMessage != nil {
		prompt = *gctx.UserMessage + "\n" + prompt
	}

	resume := ""
	sess, err := o.sessions.Get(ctx, gctx.RoomID, gctx.Agent.ID)
	if err != nil {
		return Errored, fmt.Errorf("generate turn: load session: %w", err)
	}
	if sess != nil {
		resume = sess.SessionID
	}

	opts, err := o.buildOptions(ctx, gctx, resume)
	if err != nil {
		return Errored, fmt.Errorf("generate turn: build options: %w", err)
	}

	connectCtx, connectSpan := tracing.StartPoolConnect(ctx, task.String(), false)
	client, isNew, usageMu, err := o.pool.GetOrCreate(connectCtx, task, opts)
	tracing.SetPoolConnectReused(connectSpan, !isNew)
	connectSpan.End()
	if err != nil {
		return Errored, fmt.Errorf("generate turn: acquire client: %w", err)
	}
	usageMu.Lock()
	defer usageMu.Unlock()

	o.streamState.Init(task, gctx.Agent.Name, gctx.Hidden)
	defer o.streamState.Clear(task)

	tempID := uuid.NewString()
	o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamStart, Data: StreamStartData{
		TaskID: task.String(), AgentID: gctx.Agent.ID, AgentName: gctx.Agent.Name, TempID: tempID,
	}})

	if err := client.Query(ctx, prompt); err != nil {
		return Errored, fmt.Errorf("generate turn: query: %w", err)
	}
	o.registerClient(task, client)
	defer o.deregisterClient(task)

	outcome, response, thinking, sessionID, skipUsed, genErr := o.consumeStream(ctx, task, gctx, client)

	if outcome == Cancelled {
		o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamEnd, Data: StreamEndData{
			TaskID: task.String(), AgentID: gctx.Agent.ID, Skipped: true,
		}})
		return Cancelled, nil
	}

	if room, err := o.getRoom(ctx, gctx.RoomID); err == nil && room.IsPaused {
		o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamEnd, Data: StreamEndData{
			TaskID: task.String(), AgentID: gctx.Agent.ID, Skipped: true,
		}})
		return Skipped, nil
	}

	if sessionID != "" {
		if err := o.saveSession(ctx, gctx.RoomID, gctx.Agent.ID, sessionID); err != nil {
			o.log.Warn("failed to persist session id", "room_id", gctx.RoomID, "agent_id", gctx.Agent.ID, "error", err)
		}
	}

	if genErr != nil {
		o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamEnd, Data: StreamEndData{
			TaskID: task.String(), AgentID: gctx.Agent.ID, Skipped: false, Error: genErr.Error(),
		}})
		return Errored, genErr
	}

	if skipUsed {
		if _, err := o.persistMessage(ctx, gctx.RoomID, &gctx.Agent.ID, model.SkipMarker, thinking, nil); err != nil {
			o.log.Error("failed to persist skip marker", "room_id", gctx.RoomID, "agent_id", gctx.Agent.ID, "error", err)
		}
		o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamEnd, Data: StreamEndData{
			TaskID: task.String(), AgentID: gctx.Agent.ID, Skipped: true, SessionID: sessionID,
		}})
		return Skipped, nil
	}

	msg, err := o.persistMessage(ctx, gctx.RoomID, &gctx.Agent.ID, response, thinking, nil)
	if err != nil {
		o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamEnd, Data: StreamEndData{
			TaskID: task.String(), AgentID: gctx.Agent.ID, Skipped: false, Error: err.Error(),
		}})
		return Errored, fmt.Errorf("generate turn: persist message: %w", err)
	}

	o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventStreamEnd, Data: StreamEndData{
		TaskID: task.String(), AgentID: gctx.Agent.ID, Skipped: false, ResponseText: response, ThinkingText: thinking, SessionID: sessionID,
	}})
	o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventNewMessage, Data: NewMessageData{
		ID: msg.ID, RoomID: gctx.RoomID, AgentID: &gctx.Agent.ID, Content: response, Role: string(model.RoleAssistant),
		Timestamp: msg.CreatedAt.Format(time.RFC3339Nano),
	}})
	o.cacheStore.InvalidatePrefix(cache.RoomMessagesKey(gctx.RoomID))

	return Responded, nil
}

// consumeStream iterates client's events, folding them through
// streamparser.Parse and broadcasting deltas as they accumulate. It
// returns once the event channel closes (natural stream end) or ctx is
// cancelled.
func (o *Orchestrator) consumeStream(ctx context.Context, task taskid.ID, gctx GenerationContext, client llmruntime.Client) (outcome TurnOutcome, response, thinking, sessionID string, skipUsed bool, err error) {
	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			return Cancelled, response, thinking, sessionID, skipUsed, nil

		case evt, ok := <-events:
			if !ok {
				return Responded, response, thinking, sessionID, skipUsed, nil
			}

			if errEvt, isErr := evt.(llmruntime.ErrorEvent); isErr {
				return Errored, response, thinking, sessionID, skipUsed, errEvt.Err
			}

			parsed := streamparser.Parse(evt, response, thinking)

			contentDelta := parsed.Response[len(response):]
			thinkingDelta := parsed.Thinking[len(thinking):]
			response = parsed.Response
			thinking = parsed.Thinking

			if parsed.SessionID != "" {
				sessionID = parsed.SessionID
			}
			if parsed.SkipUsed {
				skipUsed = true
			}

			o.streamState.Update(task, thinking, response)

			if contentDelta != "" {
				o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventContentDelta, Data: ContentDeltaData{
					TaskID: task.String(), AgentID: gctx.Agent.ID, Delta: contentDelta, Accumulated: response,
				}})
			}
			if thinkingDelta != "" {
				o.broadcaster.Broadcast(gctx.RoomID, broadcast.Event{Type: EventThinkingDelta, Data: ThinkingDeltaData{
					TaskID: task.String(), AgentID: gctx.Agent.ID, Delta: thinkingDelta, Accumulated: thinking,
				}})
			}
		}
	}
}
