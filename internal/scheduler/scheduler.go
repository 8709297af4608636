// Package scheduler implements the Background Scheduler (§4.J): a
// periodic driver that discovers rooms needing an autonomous round and
// hands them to the Turn Scheduler, plus a slower cleanup tick over the
// Cache and the tape Orchestrator's own housekeeping.
//
// Grounded on cmd/gateway_cron.go's cron-lane dispatch for the overall
// "cron expression drives a handler, handler runs through the
// scheduler" shape, adapted from its per-job dispatch onto a per-tick
// fan-out over active rooms.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tape"
)

// Config bounds the Background Scheduler's behavior (§4.J literals).
type Config struct {
	TickExpr           string        // gronx expression evaluated every poll, e.g. "@every 2s"
	CleanupExpr        string        // gronx expression for the slow housekeeping tick, e.g. "@every 5m"
	PollInterval       time.Duration // how often the gronx expressions are evaluated
	ActiveWindow       time.Duration // rooms last active within this window are eligible
	MaxConcurrentRooms int
}

// DefaultConfig matches the literals named in spec §4.J.
func DefaultConfig() Config {
	return Config{
		TickExpr:           "@every 2s",
		CleanupExpr:        "@every 5m",
		PollInterval:       500 * time.Millisecond,
		ActiveWindow:       5 * time.Minute,
		MaxConcurrentRooms: 5,
	}
}

// Scheduler drives periodic autonomous rounds and periodic cleanup.
type Scheduler struct {
	log *slog.Logger

	rooms        store.RoomStore
	agents       store.AgentStore
	cacheStore   *cache.Cache
	orchestrator *tape.Orchestrator

	cfg     Config
	gron    gronx.Gronx
	limiter *rate.Limiter

	ticking atomic.Bool
}

// New constructs a Scheduler. cfg's zero value is replaced with
// DefaultConfig.
func New(log *slog.Logger, rooms store.RoomStore, agents store.AgentStore, cacheStore *cache.Cache, orch *tape.Orchestrator, cfg Config) *Scheduler {
	if cfg.MaxConcurrentRooms == 0 {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		log:          log.With("component", "scheduler"),
		rooms:        rooms,
		agents:       agents,
		cacheStore:   cacheStore,
		orchestrator: orch,
		cfg:          cfg,
		gron:         gronx.New(),
		limiter:      rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.MaxConcurrentRooms)), cfg.MaxConcurrentRooms),
	}
}

// Run evaluates the tick and cleanup expressions every PollInterval
// until ctx is cancelled. max_instances=1 is enforced via the `ticking`
// flag: if the previous tick's fan-out hasn't finished, the next due
// tick is silently dropped rather than queued or warned about (§4.J
// execution invariants).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.maybeFire(ctx, now)
		}
	}
}

func (s *Scheduler) maybeFire(ctx context.Context, now time.Time) {
	if due, err := s.gron.IsDue(s.cfg.TickExpr, now); err == nil && due {
		if s.ticking.CompareAndSwap(false, true) {
			go func() {
				defer s.ticking.Store(false)
				s.tick(ctx)
			}()
		} else {
			s.log.Debug("dropping scheduler tick, previous tick still running")
		}
	}
	if due, err := s.gron.IsDue(s.cfg.CleanupExpr, now); err == nil && due {
		go s.cleanup(ctx)
	}
}

// tick implements §4.J steps 1–2: discover active, unpaused, unfinished,
// world-less rooms with at least two agents, and run an autonomous round
// for each, capped at MaxConcurrentRooms concurrently.
func (s *Scheduler) tick(ctx context.Context) {
	since := time.Now().Add(-s.cfg.ActiveWindow)
	rooms, err := s.rooms.ListActiveForScheduling(ctx, since, s.cfg.MaxConcurrentRooms)
	if err != nil {
		s.log.Error("failed to list active rooms", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentRooms)

	for _, room := range rooms {
		room := room
		g.Go(func() error {
			agents, err := s.agents.ListForRoom(gctx, room.ID)
			if err != nil {
				s.log.Error("failed to load room agents", "room_id", room.ID, "error", err)
				return nil
			}
			if len(agents) < 2 {
				return nil
			}
			if err := s.limiter.Wait(gctx); err != nil {
				return nil
			}
			if err := s.orchestrator.ProcessAutonomousRound(gctx, room.ID); err != nil {
				s.log.Error("autonomous round failed", "room_id", room.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// cleanup implements §4.J step 3: cache housekeeping plus the
// Orchestrator's own stale-task-map sweep (supplemented from
// scheduler.py's _cleanup_completed_tasks).
func (s *Scheduler) cleanup(ctx context.Context) {
	s.cacheStore.CleanupExpired()
	s.cacheStore.LogStats()
	if removed := s.orchestrator.Sweep(); removed > 0 {
		s.log.Info("swept finished room tasks", "count", removed)
	}
}
