// Package tape implements the Turn Scheduler (§4.I), the Response
// Generator (§4.H), and Interruption/Cleanup (§4.K): the three pieces
// the spec calls "the core" alongside the Client Pool. One Orchestrator
// is shared process-wide; it owns no goroutines of its own beyond the
// background tasks it spawns per room.
//
// Grounded on the control flow described in backend's orchestration
// layer (handle_user_message / process_autonomous_round /
// _process_agent_responses, observable from spec §4.I) and on the
// teacher's internal/sessions.Manager for the "map of live per-key state
// guarded by one mutex" shape reused here for activeRoomTasks and
// activeClients.
package tape

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/pool"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/writequeue"
	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

// Deps bundles the Orchestrator's collaborators so construction reads as
// one explicit dependency list rather than reaching for package-level
// singletons (§9: "replace global singletons with explicit dependencies
// passed through a root AppContext struct").
type Deps struct {
	Log *slog.Logger

	Rooms    store.RoomStore
	Agents   store.AgentStore
	Messages store.MessageStore
	Sessions store.RoomAgentSessionStore

	Cache       *cache.Cache
	Streaming   *streaming.Table
	Broadcaster *broadcast.Broadcaster
	Pool        *pool.Pool
	WriteQueue  *writequeue.Queue

	BuildOptions OptionsBuilder

	Config Config
}

// roomTask tracks the single background task allowed per room (§5:
// "Per room, at most one tape runs at a time").
type roomTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator is the Turn Scheduler plus Response Generator plus
// Interruption/Cleanup, operating over one set of shared collaborators.
type Orchestrator struct {
	log *slog.Logger

	rooms    store.RoomStore
	agents   store.AgentStore
	messages store.MessageStore
	sessions store.RoomAgentSessionStore

	cacheStore  *cache.Cache
	streamState *streaming.Table
	broadcaster *broadcast.Broadcaster
	pool        *pool.Pool
	writeQueue  *writequeue.Queue

	buildOptions OptionsBuilder
	cfg          Config

	mu              sync.Mutex
	activeRoomTasks map[int64]*roomTask

	clientsMu     sync.Mutex
	activeClients map[taskid.ID]llmruntime.Client

	lastUserMu     sync.Mutex
	lastUserAt     map[int64]time.Time
}

// New constructs an Orchestrator. deps.Config is defaulted via
// DefaultConfig when its zero value is passed.
func New(deps Deps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	cfg := deps.Config
	if cfg.MaxTotalMessages == 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		log:             log.With("component", "tape"),
		rooms:           deps.Rooms,
		agents:          deps.Agents,
		messages:        deps.Messages,
		sessions:        deps.Sessions,
		cacheStore:      deps.Cache,
		streamState:     deps.Streaming,
		broadcaster:     deps.Broadcaster,
		pool:            deps.Pool,
		writeQueue:      deps.WriteQueue,
		buildOptions:    deps.BuildOptions,
		cfg:             cfg,
		activeRoomTasks: make(map[int64]*roomTask),
		activeClients:   make(map[taskid.ID]llmruntime.Client),
		lastUserAt:      make(map[int64]time.Time),
	}
}

func (o *Orchestrator) registerClient(task taskid.ID, client llmruntime.Client) {
	o.clientsMu.Lock()
	o.activeClients[task] = client
	o.clientsMu.Unlock()
}

func (o *Orchestrator) deregisterClient(task taskid.ID) {
	o.clientsMu.Lock()
	delete(o.activeClients, task)
	o.clientsMu.Unlock()
}

// Sweep prunes activeRoomTasks entries whose goroutine has already
// finished, so the map does not grow unboundedly across the process
// lifetime. Called from the Background Scheduler's periodic cleanup
// tick (§4.J), not from the hot path.
func (o *Orchestrator) Sweep() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for roomID, rt := range o.activeRoomTasks {
		select {
		case <-rt.done:
			delete(o.activeRoomTasks, roomID)
			removed++
		default:
		}
	}
	return removed
}
