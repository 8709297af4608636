package tape

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime/llmruntimetest"
	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
	"github.com/nextlevelbuilder/goclaw-tape/internal/pool"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/writequeue"
	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

// scriptedFactory hands out a pre-built fake client keyed by the agent id
// the test's BuildOptions stashed in Options.Model, so each agent in a
// scenario can be scripted independently. It runs on the tape's own
// background goroutine, so failures are reported with Errorf (safe from
// any goroutine) rather than Fatalf.
func scriptedFactory(t *testing.T, clients map[int64]*llmruntimetest.Client) pool.Factory {
	t.Helper()
	return func(opts llmruntime.Options) llmruntime.Client {
		agentID, err := strconv.ParseInt(opts.Model, 10, 64)
		if err != nil {
			t.Errorf("factory: malformed agent id in Options.Model %q: %v", opts.Model, err)
			return llmruntimetest.New(opts)
		}
		c, ok := clients[agentID]
		if !ok {
			t.Errorf("factory: no scripted client for agent %d", agentID)
			return llmruntimetest.New(opts)
		}
		return c
	}
}

func buildOptionsByAgentID(ctx context.Context, gctx GenerationContext, resume string) (llmruntime.Options, error) {
	return llmruntime.Options{Model: strconv.FormatInt(gctx.Agent.ID, 10), Resume: resume}, nil
}

func newTestOrchestrator(store *fakeStore, factory pool.Factory, cfg Config) *Orchestrator {
	return New(Deps{
		Rooms:        store,
		Agents:       agentAdapter{store},
		Messages:     messageAdapter{store},
		Sessions:     sessionAdapter{store},
		Cache:        cache.New(nil),
		Streaming:    streaming.NewTable(),
		Broadcaster:  broadcast.New(nil),
		Pool:         pool.New(nil, factory),
		WriteQueue:   writequeue.New(nil),
		BuildOptions: buildOptionsByAgentID,
		Config:       cfg,
	})
}

// waitRoomIdle blocks until roomID has no in-flight background tape, or
// fails the test after timeout.
func waitRoomIdle(t *testing.T, o *Orchestrator, roomID int64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		o.mu.Lock()
		rt, ok := o.activeRoomTasks[roomID]
		o.mu.Unlock()
		if !ok {
			return
		}
		select {
		case <-rt.done:
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("room %d still has an active tape after %s", roomID, timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleUserMessageSingleAgentRespondsOnce(t *testing.T) {
	store := newFakeStore()
	store.addRoom(&model.Room{ID: 1, LastActivityAt: time.Now()})
	store.addAgent(1, &model.Agent{ID: 10, Name: "Aria", Priority: 1})

	client := llmruntimetest.New(llmruntime.Options{}).WithCloseAfterQuery()
	client.Queued = []llmruntime.Event{
		llmruntime.AssistantMessage{Content: []llmruntime.ContentBlock{llmruntime.TextBlock{Text: "hello there"}}},
		llmruntime.SystemMessage{Data: map[string]any{"session_id": "sess-1"}},
		llmruntime.ResultMessage{Usage: &llmruntime.Usage{OutputTokens: 5}},
	}
	clients := map[int64]*llmruntimetest.Client{10: client}

	o := newTestOrchestrator(store, scriptedFactory(t, clients), DefaultConfig())

	if err := o.HandleUserMessage(context.Background(), UserMessageInput{RoomID: 1, Content: "hi there"}); err != nil {
		t.Fatalf("handle user message: %v", err)
	}
	waitRoomIdle(t, o, 1, time.Second)

	msgs := store.allMessages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (user + assistant)", len(msgs))
	}
	assistant := msgs[1]
	if assistant.AgentID == nil || *assistant.AgentID != 10 || assistant.Content != "hello there" {
		t.Fatalf("got assistant message %+v", assistant)
	}
	if client.ConnectCalls() != 1 {
		t.Fatalf("expected exactly one connect, got %d", client.ConnectCalls())
	}
	if store.roomFinished(1) {
		t.Fatal("a single-agent room must not be auto-finished after one round")
	}
}

func TestProcessAutonomousRoundAllSkipMarksRoomFinished(t *testing.T) {
	store := newFakeStore()
	store.addRoom(&model.Room{ID: 2, LastActivityAt: time.Now()})
	store.addAgent(2, &model.Agent{ID: 20, Priority: 2})
	store.addAgent(2, &model.Agent{ID: 21, Priority: 1})

	// Neither agent has a prior response nor a new user message to react
	// to, so GenerateTurn skips both before ever touching the pool.
	factory := func(opts llmruntime.Options) llmruntime.Client {
		t.Error("pool should not be consulted when every agent has nothing to respond to")
		return llmruntimetest.New(opts)
	}

	o := newTestOrchestrator(store, factory, DefaultConfig())

	if err := o.ProcessAutonomousRound(context.Background(), 2); err != nil {
		t.Fatalf("process autonomous round: %v", err)
	}
	waitRoomIdle(t, o, 2, time.Second)

	if !store.roomFinished(2) {
		t.Fatal("expected an all-skip round to mark the room finished")
	}
}

// TestInterruptDuringStreamReachesTheStreamingClient is a regression
// test: InterruptRoomProcessing must call Interrupt on the client that is
// actually mid-stream for the room, not lose it to a race with the
// turn's own cancellation-triggered cleanup.
func TestInterruptDuringStreamReachesTheStreamingClient(t *testing.T) {
	store := newFakeStore()
	store.addRoom(&model.Room{ID: 3, LastActivityAt: time.Now()})
	store.addAgent(3, &model.Agent{ID: 30, Priority: 1})

	// No Queued events and no WithCloseAfterQuery: Query returns having
	// sent nothing, so consumeStream blocks in its select forever until
	// interrupted or the context is cancelled.
	client := llmruntimetest.New(llmruntime.Options{})
	clients := map[int64]*llmruntimetest.Client{30: client}

	o := newTestOrchestrator(store, scriptedFactory(t, clients), DefaultConfig())

	if err := o.HandleUserMessage(context.Background(), UserMessageInput{RoomID: 3, Content: "hi"}); err != nil {
		t.Fatalf("handle user message: %v", err)
	}

	task := taskid.New(3, 30)
	deadline := time.Now().Add(time.Second)
	for {
		o.clientsMu.Lock()
		_, registered := o.activeClients[task]
		o.clientsMu.Unlock()
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client was never registered as streaming")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := o.InterruptRoomProcessing(context.Background(), 3, false); err != nil {
		t.Fatalf("interrupt room processing: %v", err)
	}
	waitRoomIdle(t, o, 3, time.Second)

	if client.InterruptCalls() != 1 {
		t.Fatalf("expected Interrupt to reach the streaming client exactly once, got %d calls", client.InterruptCalls())
	}
}

func TestGenerateTurnSurfacesRuntimeErrorEvent(t *testing.T) {
	store := newFakeStore()
	store.addRoom(&model.Room{ID: 4, LastActivityAt: time.Now()})
	store.addAgent(4, &model.Agent{ID: 40, Priority: 1})

	client := llmruntimetest.New(llmruntime.Options{}).WithCloseAfterQuery()
	wantErr := "upstream connection dropped"
	client.Queued = []llmruntime.Event{
		llmruntime.AssistantMessage{Content: []llmruntime.ContentBlock{llmruntime.TextBlock{Text: "partial"}}},
		llmruntime.ErrorEvent{Err: errString(wantErr)},
	}
	clients := map[int64]*llmruntimetest.Client{40: client}

	o := newTestOrchestrator(store, scriptedFactory(t, clients), DefaultConfig())

	outcome, err := o.GenerateTurn(context.Background(), GenerationContext{
		RoomID: 4, Agent: &model.Agent{ID: 40, Priority: 1}, UserMessage: strPtr("hi"),
	})
	if outcome != Errored {
		t.Fatalf("got outcome %v, want Errored", outcome)
	}
	if err == nil || err.Error() != wantErr {
		t.Fatalf("got err %v, want %q", err, wantErr)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func strPtr(s string) *string { return &s }
