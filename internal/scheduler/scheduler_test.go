package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime/llmruntimetest"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/pool"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tape"
	"github.com/nextlevelbuilder/goclaw-tape/internal/writequeue"
)

// newTestOrchestrator wires an Orchestrator over store with a pool
// factory that fails the test if ever invoked. Every scenario exercised
// here seats agents with no prior messages and no triggering user
// message, so the Response Generator's early "nothing to respond to"
// skip fires before any client is ever requested from the pool.
func newTestOrchestrator(t *testing.T, store *fakeStore) *tape.Orchestrator {
	t.Helper()
	factory := func(opts llmruntime.Options) llmruntime.Client {
		// Runs on the tape's own background goroutine: Errorf is safe to
		// call from any goroutine, Fatalf is not.
		t.Error("pool factory should not be invoked for an all-skip autonomous round")
		return llmruntimetest.New(opts)
	}
	return tape.New(tape.Deps{
		Rooms:       store,
		Agents:      agentAdapter{store},
		Messages:    messageAdapter{store},
		Sessions:    sessionAdapter{store},
		Cache:       cache.New(nil),
		Streaming:   streaming.NewTable(),
		Broadcaster: broadcast.New(nil),
		Pool:        pool.New(nil, factory),
		WriteQueue:  writequeue.New(nil),
		BuildOptions: func(ctx context.Context, gctx tape.GenerationContext, resume string) (llmruntime.Options, error) {
			return llmruntime.Options{}, nil
		},
		Config: tape.DefaultConfig(),
	})
}

func pollUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestTickSkipsRoomsWithFewerThanTwoAgents exercises §4.J step 1's
// "at least two agents" filter, run directly against tick rather than
// through the gronx-driven Run/maybeFire path (whose exact IsDue timing
// this suite does not assert on).
func TestTickSkipsRoomsWithFewerThanTwoAgents(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	store.addRoom(&model.Room{ID: 1, LastActivityAt: now})
	store.addAgent(1, &model.Agent{ID: 1, Priority: 1})

	store.addRoom(&model.Room{ID: 2, LastActivityAt: now})
	store.addAgent(2, &model.Agent{ID: 21, Priority: 1})
	store.addAgent(2, &model.Agent{ID: 22, Priority: 1})

	orch := newTestOrchestrator(t, store)
	s := New(nil, store, agentAdapter{store}, cache.New(nil), orch, Config{
		MaxConcurrentRooms: 5,
		ActiveWindow:       time.Hour,
	})

	s.tick(context.Background())

	pollUntil(t, time.Second, func() bool { return store.isFinished(2) })
	if store.isFinished(1) {
		t.Fatal("room with a single agent must never be handed to the orchestrator")
	}
}

// TestCleanupExpiresCacheEntriesAndSweepsOrchestrator exercises §4.J
// step 3: cache housekeeping plus the Orchestrator's own stale-task
// sweep, run directly against cleanup.
func TestCleanupExpiresCacheEntriesAndSweepsOrchestrator(t *testing.T) {
	store := newFakeStore()
	orch := newTestOrchestrator(t, store)
	c := cache.New(nil)
	c.Set("room_obj:1", &model.Room{ID: 1}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	s := New(nil, store, agentAdapter{store}, c, orch, Config{MaxConcurrentRooms: 5, ActiveWindow: time.Hour})

	s.cleanup(context.Background())

	if got := c.Stats().Size; got != 0 {
		t.Fatalf("expected the expired entry to be swept, cache size = %d", got)
	}
	if removed := orch.Sweep(); removed != 0 {
		t.Fatalf("expected cleanup's own Sweep call to have already drained finished tasks, got %d more", removed)
	}
}
