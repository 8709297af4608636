package tape

import (
	"context"

	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

// InterruptRoomProcessing stops a room's in-flight tape, if any, and
// waits for it to unwind before returning (§4.K). The caller can rely on
// the room having no active background task once this returns, which is
// what lets HandleUserMessage safely spawn a replacement immediately
// after calling this.
//
// When savePartial is true, every task's in-flight partial output is
// drained from the Streaming State table and persisted as an assistant
// message before being discarded, so a user's interruption never loses
// output that was already streamed to them.
func (o *Orchestrator) InterruptRoomProcessing(ctx context.Context, roomID int64, savePartial bool) error {
	o.interruptRoomClients(ctx, roomID)

	// Drain before cancelling: a cancelled turn clears its own streaming
	// entry while it unwinds, so nothing would be left after the wait.
	var partials map[int64]streaming.Snapshot
	if savePartial {
		partials = o.streamState.DrainForRoom(roomID)
	}

	o.mu.Lock()
	rt, ok := o.activeRoomTasks[roomID]
	o.mu.Unlock()

	if ok {
		rt.cancel()
		<-rt.done
	}

	if !savePartial {
		return nil
	}

	for agentID, snap := range partials {
		if snap.ResponseText == "" {
			continue
		}
		id := agentID
		if _, err := o.persistMessage(ctx, roomID, &id, snap.ResponseText, snap.ThinkingText, nil); err != nil {
			o.log.Error("failed to persist partial response", "room_id", roomID, "agent_id", id, "error", err)
		}
	}
	return nil
}

// interruptRoomClients calls Interrupt on every client currently
// streaming for roomID. Must run before the room's context is cancelled:
// cancelling unblocks consumeStream, which returns and lets GenerateTurn's
// deferred deregisterClient remove the task from activeClients before this
// function would otherwise see it, so Interrupt would never reach the
// runtime for the turn actually being interrupted. Removal from
// activeClients happens in the generator's own deregisterClient once its
// GenerateTurn call observes the cancellation, not here.
func (o *Orchestrator) interruptRoomClients(ctx context.Context, roomID int64) {
	o.clientsMu.Lock()
	var tasks []taskid.ID
	for task := range o.activeClients {
		if task.RoomID == roomID {
			tasks = append(tasks, task)
		}
	}
	o.clientsMu.Unlock()

	for _, task := range tasks {
		o.clientsMu.Lock()
		client, ok := o.activeClients[task]
		o.clientsMu.Unlock()
		if !ok {
			continue
		}
		if err := client.Interrupt(ctx); err != nil {
			o.log.Warn("failed to interrupt client", "task", task.String(), "error", err)
		}
	}
}

// InterruptAll interrupts every currently streaming client across every
// room, used during process shutdown.
func (o *Orchestrator) InterruptAll(ctx context.Context) {
	o.clientsMu.Lock()
	clients := make(map[taskid.ID]struct{}, len(o.activeClients))
	for task := range o.activeClients {
		clients[task] = struct{}{}
	}
	o.clientsMu.Unlock()

	for task := range clients {
		o.clientsMu.Lock()
		client, ok := o.activeClients[task]
		o.clientsMu.Unlock()
		if !ok {
			continue
		}
		if err := client.Interrupt(ctx); err != nil {
			o.log.Warn("failed to interrupt client during shutdown", "task", task.String(), "error", err)
		}
	}
}
