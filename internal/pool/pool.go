// Package pool implements the per-(room,agent) Client Pool (§4.F): a
// long-lived LLM runtime client per task, invalidated on config or
// session-id change, with bounded retry on transient transport errors and
// a grace period before disconnecting a replaced client.
//
// Grounded on the lifecycle observable in
// backend/tests/unit/test_client_pool.py (get_or_create returning
// (client, is_new, usage_lock), session-change triggering a replacement
// whose old client is disconnected only after the background task fires,
// cleanup/cleanup_room/get_keys_for_agent) and on the teacher's
// internal/mcp.Manager for the map-of-live-connections-guarded-by-one-
// mutex shape.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/apperr"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

// DisconnectGrace is how long a replaced client is kept alive before its
// background disconnect runs, so a read already in flight against it can
// finish.
const DisconnectGrace = 500 * time.Millisecond

var connectBackoff = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}

// Factory constructs a new, unconnected runtime client for opts.
type Factory func(opts llmruntime.Options) llmruntime.Client

type entry struct {
	client     llmruntime.Client
	configHash string
	resume     string
	usageMu    *sync.Mutex
}

// Pool is the Client Pool. Zero value is not usable; construct with New.
type Pool struct {
	log     *slog.Logger
	factory Factory

	mu      sync.Mutex
	entries map[taskid.ID]*entry

	creationMu   sync.Mutex
	creationLock map[taskid.ID]*sync.Mutex

	wg sync.WaitGroup
}

// New creates a Pool that constructs clients with factory.
func New(log *slog.Logger, factory Factory) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		log:          log.With("component", "pool"),
		factory:      factory,
		entries:      make(map[taskid.ID]*entry),
		creationLock: make(map[taskid.ID]*sync.Mutex),
	}
}

// GetOrCreate returns the live client for task, creating or replacing it
// as needed, and a usage mutex the caller must hold for the duration of
// the turn (§4.F step 5, enforcing "at most one generation per task").
func (p *Pool) GetOrCreate(ctx context.Context, task taskid.ID, opts llmruntime.Options) (llmruntime.Client, bool, *sync.Mutex, error) {
	configHash := opts.ConfigHash()
	resume := opts.Resume

	taskLock := p.lockFor(task)
	taskLock.Lock()
	defer taskLock.Unlock()

	p.mu.Lock()
	if e, ok := p.entries[task]; ok && e.configHash == configHash && e.resume == resume {
		p.mu.Unlock()
		return e.client, false, e.usageMu, nil
	}
	stale := p.entries[task]
	delete(p.entries, task)
	p.mu.Unlock()

	if stale != nil {
		p.scheduleDisconnect(task, stale.client)
	}

	client, err := p.connectWithRetry(ctx, opts)
	if err != nil {
		return nil, false, nil, err
	}

	e := &entry{client: client, configHash: configHash, resume: resume, usageMu: &sync.Mutex{}}
	p.mu.Lock()
	p.entries[task] = e
	p.mu.Unlock()

	return client, true, e.usageMu, nil
}

// connectWithRetry builds a fresh client from the factory for every
// attempt and connects it, retrying transient transport errors with the
// connectBackoff delays.
func (p *Pool) connectWithRetry(ctx context.Context, opts llmruntime.Options) (llmruntime.Client, error) {
	var err error
	for attempt := 0; ; attempt++ {
		client := p.factory(opts)
		err = client.Connect(ctx)
		if err == nil {
			return client, nil
		}
		transient := isTransientTransport(err)
		if !transient || attempt >= len(connectBackoff) {
			kind := apperr.KindUnexpected
			if transient {
				kind = apperr.KindTransientTransport
			}
			return nil, apperr.New(kind, "pool.connect", err)
		}
		select {
		case <-ctx.Done():
			return nil, apperr.New(apperr.KindCancellation, "pool.connect", ctx.Err())
		case <-time.After(connectBackoff[attempt]):
		}
	}
}

func isTransientTransport(err error) bool {
	if apperr.Is(err, apperr.KindTransientTransport) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "transport is not ready")
}

// Cleanup removes task's entry, if any, and schedules its disconnect.
func (p *Pool) Cleanup(task taskid.ID) {
	p.mu.Lock()
	e, ok := p.entries[task]
	if ok {
		delete(p.entries, task)
	}
	p.mu.Unlock()
	if ok {
		p.scheduleDisconnect(task, e.client)
	}
}

// CleanupRoom removes every entry belonging to roomID.
func (p *Pool) CleanupRoom(roomID int64) {
	p.mu.Lock()
	var toRemove []taskid.ID
	for task := range p.entries {
		if task.RoomID == roomID {
			toRemove = append(toRemove, task)
		}
	}
	p.mu.Unlock()
	for _, task := range toRemove {
		p.Cleanup(task)
	}
}

// GetKeysForAgent returns every task currently pooled for agentID.
func (p *Pool) GetKeysForAgent(agentID int64) []taskid.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []taskid.ID
	for task := range p.entries {
		if task.AgentID == agentID {
			out = append(out, task)
		}
	}
	return out
}

// ShutdownAll disconnects every remaining entry immediately (no grace)
// and waits for all pending background disconnects, scheduled or
// in-flight, to complete.
func (p *Pool) ShutdownAll(ctx context.Context) {
	p.mu.Lock()
	all := p.entries
	p.entries = make(map[taskid.ID]*entry)
	p.mu.Unlock()

	for task, e := range all {
		if err := e.client.Disconnect(ctx); err != nil {
			p.log.Warn("disconnect failed during shutdown", "task", task.String(), "error", err)
		}
	}
	p.wg.Wait()
}

func (p *Pool) scheduleDisconnect(task taskid.ID, client llmruntime.Client) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		time.Sleep(DisconnectGrace)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("background disconnect failed", "task", task.String(), "error", err)
		}
	}()
}

func (p *Pool) lockFor(task taskid.ID) *sync.Mutex {
	p.creationMu.Lock()
	defer p.creationMu.Unlock()
	l, ok := p.creationLock[task]
	if !ok {
		l = &sync.Mutex{}
		p.creationLock[task] = l
	}
	return l
}
