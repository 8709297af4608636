package tape

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tracing"
)

// UserMessageInput is the payload HandleUserMessage accepts from the HTTP
// write path.
type UserMessageInput struct {
	RoomID             int64
	Content            string
	ParticipantKind    *model.ParticipantKind
	ParticipantName    *string
	Images             []string
	// SavedUserMessageID, when set, means the caller already persisted
	// the user message and HandleUserMessage must not do so again.
	SavedUserMessageID *int64
}

// HandleUserMessage is the synchronous entrypoint called from the HTTP
// write path (§4.I). It persists the user message (unless already
// saved), interrupts any in-flight tape for the room (snapshotting and
// persisting partial responses), and spawns the background tape that
// produces agent replies. It returns once the tape has been scheduled,
// not once it has finished.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, in UserMessageInput) error {
	if in.SavedUserMessageID == nil {
		msg := &model.Message{
			RoomID:          in.RoomID,
			Content:         in.Content,
			ParticipantKind: in.ParticipantKind,
			ParticipantName: in.ParticipantName,
			Images:          in.Images,
		}
		if _, err := o.persist(ctx, msg); err != nil {
			return fmt.Errorf("handle user message: persist: %w", err)
		}
	}

	if err := o.InterruptRoomProcessing(ctx, in.RoomID, true); err != nil {
		o.log.Warn("interrupt prior tape failed", "room_id", in.RoomID, "error", err)
	}

	o.setLastUserMessageTime(in.RoomID, time.Now())

	agents, err := o.roomAgents(ctx, in.RoomID)
	if err != nil {
		return fmt.Errorf("handle user message: load agents: %w", err)
	}
	if len(agents) == 0 {
		return nil
	}

	content := in.Content
	return o.spawnRoomTape(in.RoomID, agents, &content)
}

// ProcessAutonomousRound is the Background Scheduler's entrypoint
// (§4.J): same tape machinery as HandleUserMessage but without a
// triggering user message or an interruption step.
func (o *Orchestrator) ProcessAutonomousRound(ctx context.Context, roomID int64) error {
	agents, err := o.roomAgents(ctx, roomID)
	if err != nil {
		return fmt.Errorf("process autonomous round: load agents: %w", err)
	}
	if len(agents) == 0 {
		return nil
	}
	return o.spawnRoomTape(roomID, agents, nil)
}

func (o *Orchestrator) setLastUserMessageTime(roomID int64, at time.Time) {
	o.lastUserMu.Lock()
	o.lastUserAt[roomID] = at
	o.lastUserMu.Unlock()
}

// spawnRoomTape enforces "per room, at most one tape runs at a time"
// (§5) by refusing to start a new background task while the room's slot
// is occupied; callers that need to replace the in-flight tape must call
// InterruptRoomProcessing first, which clears the slot before returning.
func (o *Orchestrator) spawnRoomTape(roomID int64, agents []*model.Agent, userMessageContent *string) error {
	o.mu.Lock()
	if existing, ok := o.activeRoomTasks[roomID]; ok {
		select {
		case <-existing.done:
		default:
			o.mu.Unlock()
			return fmt.Errorf("spawn room tape: room %d already has an active tape", roomID)
		}
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	rt := &roomTask{cancel: cancel, done: make(chan struct{})}
	o.activeRoomTasks[roomID] = rt
	o.mu.Unlock()

	go func() {
		defer close(rt.done)
		defer func() {
			o.mu.Lock()
			if o.activeRoomTasks[roomID] == rt {
				delete(o.activeRoomTasks, roomID)
			}
			o.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("tape loop panicked", "room_id", roomID, "panic", r)
			}
		}()
		o.processAgentResponses(taskCtx, roomID, agents, userMessageContent)
	}()
	return nil
}

// processAgentResponses is the tape loop (§4.I): build the initial tape,
// execute it, decide termination, build follow-up tapes until one of the
// termination conditions fires.
func (o *Orchestrator) processAgentResponses(ctx context.Context, roomID int64, agents []*model.Agent, userMessageContent *string) {
	byID := make(map[int64]*model.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	currentTape := buildInitialTape(agents)
	totalAssistantMessages := 0

	for round := 0; ; round++ {
		var roundMessage *string
		if round == 0 {
			roundMessage = userMessageContent
		}

		results := o.executeTape(ctx, roomID, currentTape, byID, roundMessage)

		allSkipped := true
		for _, r := range results {
			if r.Outcome == Responded {
				totalAssistantMessages++
				allSkipped = false
			} else if r.Outcome != Skipped {
				allSkipped = false
			}
		}

		if allSkipped {
			if err := o.markRoomFinished(ctx, roomID); err != nil {
				o.log.Error("failed to mark room finished", "room_id", roomID, "error", err)
			}
			return
		}
		if totalAssistantMessages >= o.cfg.MaxTotalMessages {
			return
		}
		if round >= o.cfg.MaxFollowUpRounds {
			return
		}
		if len(agents) == 1 {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if room, err := o.getRoom(ctx, roomID); err == nil && room.IsPaused {
			return
		}

		followUps := determineFollowUpAgents(agents, results, byID)
		if len(followUps) == 0 {
			return
		}
		currentTape = buildTape(followUps, round+1, true)
	}
}

// executeTape runs descriptor in order (§5: "turn N completes before
// turn N+1 starts"), catching and logging any per-turn error so the
// loop proceeds to the next agent (§7 propagation policy).
func (o *Orchestrator) executeTape(ctx context.Context, roomID int64, t Tape, byID map[int64]*model.Agent, userMessage *string) []TurnResult {
	ctx, span := tracing.StartRound(ctx, roomID)
	defer span.End()

	results := make([]TurnResult, 0, len(t))
	for _, desc := range t {
		if ctx.Err() != nil {
			results = append(results, TurnResult{Descriptor: desc, Outcome: Cancelled})
			continue
		}
		agent, ok := byID[desc.AgentID]
		if !ok {
			continue
		}
		outcome, err := o.runTurn(ctx, roomID, agent, userMessage)
		if err != nil {
			o.log.Error("turn failed", "room_id", roomID, "agent_id", agent.ID, "error", err)
		}
		results = append(results, TurnResult{Descriptor: desc, Outcome: outcome, Err: err})
	}
	return results
}

func (o *Orchestrator) runTurn(ctx context.Context, roomID int64, agent *model.Agent, userMessage *string) (TurnOutcome, error) {
	ctx, span := tracing.StartAgentTurn(ctx, roomID, agent.ID, agent.Name)
	defer span.End()

	return o.GenerateTurn(ctx, GenerationContext{
		RoomID:      roomID,
		Agent:       agent,
		UserMessage: userMessage,
	})
}

func (o *Orchestrator) markRoomFinished(ctx context.Context, roomID int64) error {
	_, err := o.writeQueue.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return nil, o.rooms.SetFinished(ctx, roomID, true)
	})
	if err == nil {
		o.cacheStore.Invalidate("room_obj:" + fmt.Sprint(roomID))
	}
	return err
}

// buildInitialTape orders agents by priority descending, breaking ties
// by roster (insertion) order. Transparent and interrupt-every-turn
// agents are both included (§4.I step 1).
func buildInitialTape(agents []*model.Agent) Tape {
	ordered := sortByPriority(agents)
	t := make(Tape, len(ordered))
	for i, a := range ordered {
		t[i] = TurnDescriptor{AgentID: a.ID, IsFollowUpRound: false, RoundIndex: 0}
	}
	return t
}

func buildTape(agents []*model.Agent, round int, followUp bool) Tape {
	ordered := sortByPriority(agents)
	t := make(Tape, len(ordered))
	for i, a := range ordered {
		t[i] = TurnDescriptor{AgentID: a.ID, IsFollowUpRound: followUp, RoundIndex: round}
	}
	return t
}

func sortByPriority(agents []*model.Agent) []*model.Agent {
	ordered := make([]*model.Agent, len(agents))
	copy(ordered, agents)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })
	return ordered
}

// determineFollowUpAgents decides which agents are offered a follow-up
// turn. An agent is offered one if it is interrupt-every-turn, or if a
// *different*, non-transparent agent Responded in the round just
// completed. An agent's own message never earns it a follow-up (see
// DESIGN.md for this Open Question decision).
func determineFollowUpAgents(agents []*model.Agent, results []TurnResult, byID map[int64]*model.Agent) []*model.Agent {
	triggered := make(map[int64]bool)
	for _, r := range results {
		if r.Outcome != Responded {
			continue
		}
		if a, ok := byID[r.Descriptor.AgentID]; ok && !a.Transparent {
			triggered[a.ID] = true
		}
	}

	var out []*model.Agent
	for _, a := range agents {
		if a.InterruptEveryTurn {
			out = append(out, a)
			continue
		}
		for triggerID := range triggered {
			if triggerID != a.ID {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
