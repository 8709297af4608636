package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-tape/internal/broadcast"
	"github.com/nextlevelbuilder/goclaw-tape/internal/cache"
	"github.com/nextlevelbuilder/goclaw-tape/internal/config"
	"github.com/nextlevelbuilder/goclaw-tape/internal/httpapi"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/pool"
	"github.com/nextlevelbuilder/goclaw-tape/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store/pg"
	"github.com/nextlevelbuilder/goclaw-tape/internal/store/sqlite"
	"github.com/nextlevelbuilder/goclaw-tape/internal/streaming"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tape"
	"github.com/nextlevelbuilder/goclaw-tape/internal/ticket"
	"github.com/nextlevelbuilder/goclaw-tape/internal/tracing"
	"github.com/nextlevelbuilder/goclaw-tape/internal/writequeue"
	"github.com/nextlevelbuilder/goclaw-tape/internal/wsbridge"
)

// RuntimeClientFactory builds the llmruntime.Client used by the Client
// Pool. A real LLM runtime is an explicit Non-goal of this service (it
// is modeled purely as the llmruntime.Client interface); operators wire
// a concrete SDK-backed implementation in by setting this variable
// before calling Execute, the same dependency-injection seam
// tape.OptionsBuilder already uses for agent/world configuration.
var RuntimeClientFactory pool.Factory

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tape HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if verbose {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("tracing shutdown error", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}

	cacheStore := cache.New(log)
	streamTable := streaming.NewTable()
	broadcaster := broadcast.New(log)
	writeQueue := writequeue.New(log)
	writeQueue.Start(context.Background())

	factory := RuntimeClientFactory
	if factory == nil {
		factory = func(opts llmruntime.Options) llmruntime.Client {
			panic("tape: no RuntimeClientFactory configured — a real LLM runtime is a Non-goal of this service; inject one before calling Execute")
		}
	}
	clientPool := pool.New(log, factory)

	orch := tape.New(tape.Deps{
		Log:          log,
		Rooms:        stores.Rooms,
		Agents:       stores.Agents,
		Messages:     stores.Messages,
		Sessions:     stores.Sessions,
		Cache:        cacheStore,
		Streaming:    streamTable,
		Broadcaster:  broadcaster,
		Pool:         clientPool,
		WriteQueue:   writeQueue,
		BuildOptions: defaultOptionsBuilder(cfg),
		Config: tape.Config{
			MaxTotalMessages:   cfg.Tape.MaxTotalMessages,
			MaxFollowUpRounds:  cfg.Tape.MaxFollowUpRounds,
			MaxConcurrentRooms: cfg.Scheduler.MaxConcurrentRooms,
			SchedulerInterval:  2 * time.Second,
			RoomActiveWindow:   cfg.Scheduler.ActiveWindow,
			CacheSweepInterval: 5 * time.Minute,
		},
	})

	sched := scheduler.New(log, stores.Rooms, stores.Agents, cacheStore, orch, scheduler.Config{
		TickExpr:           cfg.Scheduler.TickExpr,
		CleanupExpr:        cfg.Scheduler.CleanupExpr,
		PollInterval:       500 * time.Millisecond,
		ActiveWindow:       cfg.Scheduler.ActiveWindow,
		MaxConcurrentRooms: cfg.Scheduler.MaxConcurrentRooms,
	})

	issuer := httpapi.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL)
	tickets := ticket.New()

	var guestHash []byte
	if cfg.Auth.GuestHash != "" {
		guestHash = []byte(cfg.Auth.GuestHash)
	}

	bridge := wsbridge.New(log, stores.Rooms, streamTable, tickets, broadcaster, wsbridge.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		ConnectLimit:   30,
		ConnectWindow:  time.Minute,
	})

	mux := httpapi.NewMux(httpapi.Deps{
		Log:       log,
		Stores:    stores,
		Orch:      orch,
		Tickets:   tickets,
		Broadcast: broadcaster,
		Streaming: streamTable,
		Verify:    issuer.Verify,
		LoginConfig: httpapi.LoginConfig{
			AdminHash: []byte(cfg.Auth.AdminHash),
			GuestHash: guestHash,
		},
		Issuer:   issuer,
		WSBridge: bridge,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go sched.Run(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		orch.InterruptAll(context.Background())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", "error", err)
		}
		writeQueue.Stop(10 * time.Second)
	}()

	log.Info("tape server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return pg.NewStores(cfg.Database.PostgresDSN)
	case "sqlite", "":
		return sqlite.NewStores(cfg.Database.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// defaultOptionsBuilder returns an OptionsBuilder that applies the
// process-wide defaults (model, thinking budget) plus the agent's own
// system prompt, the resume session and the turn's output format. It
// wires no allowed tools, MCP servers or subagents.
func defaultOptionsBuilder(cfg *config.Config) tape.OptionsBuilder {
	return func(ctx context.Context, gctx tape.GenerationContext, resume string) (llmruntime.Options, error) {
		return llmruntime.Options{
			Model:             cfg.Runtime.DefaultModel,
			SystemPrompt:      gctx.Agent.SystemPrompt,
			MaxThinkingTokens: cfg.Runtime.MaxThinkingTokens,
			Resume:            resume,
			OutputFormat:      gctx.OutputFormat,
		}, nil
	}
}
