// Package streaming tracks the in-flight partial thinking/response text
// for every currently-generating (room, agent) task, so SSE subscribers
// can catch up mid-stream and so an interrupted generation's partial
// output can be persisted instead of lost.
//
// Grounded on backend/sdk/agent/streaming_state.py's StreamingStateManager:
// a single lock guards a map keyed by task identifier, snapshots are
// copies (never references), and "hidden" entries withhold response text
// from snapshots by never storing it.
package streaming

import (
	"sync"

	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

type state struct {
	agentName      string
	thinkingText   string
	responseText   string
	narrationText  string
	hidden         bool
}

// Snapshot is a point-in-time, detached copy of one task's streaming state.
type Snapshot struct {
	AgentName     string
	ThinkingText  string
	ResponseText  string
	NarrationText string
}

// Table is the thread-safe per-(room,agent) partial-text table.
type Table struct {
	mu    sync.Mutex
	state map[taskid.ID]*state
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{state: make(map[taskid.ID]*state)}
}

// Init creates the streaming-state entry for a task. hidden=true withholds
// response text from snapshots (used for agents whose visible output is
// emitted through another path, e.g. a narration tool).
func (t *Table) Init(task taskid.ID, agentName string, hidden bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[task] = &state{agentName: agentName, hidden: hidden}
}

// Update replaces the accumulated thinking and response text for a task.
// A no-op if the task has no entry (e.g. it was already cleared).
func (t *Table) Update(task taskid.ID, thinking, response string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[task]
	if !ok {
		return
	}
	s.thinkingText = thinking
	if !s.hidden {
		s.responseText = response
	}
}

// UpdateNarration replaces the accumulated narration text for a task.
func (t *Table) UpdateNarration(task taskid.ID, narration string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.state[task]; ok {
		s.narrationText = narration
	}
}

// Clear removes a task's streaming-state entry.
func (t *Table) Clear(task taskid.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, task)
}

// SnapshotForRoom returns a detached copy of every in-flight task's state
// for a room, keyed by agent ID.
func (t *Table) SnapshotForRoom(roomID int64) map[int64]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotForRoomLocked(roomID)
}

func (t *Table) snapshotForRoomLocked(roomID int64) map[int64]Snapshot {
	out := make(map[int64]Snapshot)
	for task, s := range t.state {
		if task.RoomID != roomID {
			continue
		}
		out[task.AgentID] = Snapshot{
			AgentName:     s.agentName,
			ThinkingText:  s.thinkingText,
			ResponseText:  s.responseText,
			NarrationText: s.narrationText,
		}
	}
	return out
}

// DrainForRoom returns the same snapshot as SnapshotForRoom, then clears
// every matching entry. Used by interruption to capture partial output
// before discarding in-memory state.
func (t *Table) DrainForRoom(roomID int64) map[int64]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.snapshotForRoomLocked(roomID)
	for task := range t.state {
		if task.RoomID == roomID {
			delete(t.state, task)
		}
	}
	return out
}

// Get returns the current snapshot for one task, or false if absent.
func (t *Table) Get(task taskid.ID) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[task]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		AgentName:     s.agentName,
		ThinkingText:  s.thinkingText,
		ResponseText:  s.responseText,
		NarrationText: s.narrationText,
	}, true
}
