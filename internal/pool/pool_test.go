package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime/llmruntimetest"
	"github.com/nextlevelbuilder/goclaw-tape/pkg/taskid"
)

func factoryRecording(created *[]*llmruntimetest.Client) Factory {
	return func(opts llmruntime.Options) llmruntime.Client {
		c := llmruntimetest.New(opts)
		*created = append(*created, c)
		return c
	}
}

func TestGetOrCreateNewClient(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	task := taskid.New(1, 2)

	client, isNew, mu, err := p.GetOrCreate(context.Background(), task, llmruntime.Options{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if !isNew || mu == nil || client == nil {
		t.Fatal("expected a new client with a usage mutex")
	}
	if len(created) != 1 || created[0].ConnectCalls() != 1 {
		t.Fatalf("expected exactly one connected client, got %d", len(created))
	}
}

func TestGetOrCreateReusesExisting(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	task := taskid.New(1, 2)
	opts := llmruntime.Options{Model: "m"}

	c1, isNew1, mu1, err := p.GetOrCreate(context.Background(), task, opts)
	if err != nil {
		t.Fatal(err)
	}
	c2, isNew2, mu2, err := p.GetOrCreate(context.Background(), task, opts)
	if err != nil {
		t.Fatal(err)
	}

	if !isNew1 || isNew2 {
		t.Fatal("second call should reuse")
	}
	if c1 != c2 || mu1 != mu2 {
		t.Fatal("expected the same client and mutex on reuse")
	}
	if len(created) != 1 {
		t.Fatalf("expected only one client constructed, got %d", len(created))
	}
}

func TestSessionChangeTriggersNewClientAndBackgroundDisconnect(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	task := taskid.New(1, 2)

	c1, _, _, err := p.GetOrCreate(context.Background(), task, llmruntime.Options{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	c2, isNew2, _, err := p.GetOrCreate(context.Background(), task, llmruntime.Options{Model: "m", Resume: "sess_123"})
	if err != nil {
		t.Fatal(err)
	}
	if !isNew2 || c1 == c2 {
		t.Fatal("expected a new client when resume changes")
	}

	old := c1.(*llmruntimetest.Client)
	if old.DisconnectCalls() != 0 {
		t.Fatal("old client must not be disconnected before the grace period")
	}
	time.Sleep(DisconnectGrace + 200*time.Millisecond)
	if old.DisconnectCalls() != 1 {
		t.Fatal("expected old client to be disconnected after the grace period")
	}
}

func TestCleanupRemovesEntryAndSchedulesDisconnect(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	task := taskid.New(1, 2)

	client, _, _, err := p.GetOrCreate(context.Background(), task, llmruntime.Options{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	p.Cleanup(task)

	if _, isNew, _, _ := p.GetOrCreate(context.Background(), task, llmruntime.Options{Model: "m"}); !isNew {
		t.Fatal("expected a fresh client after cleanup")
	}

	time.Sleep(DisconnectGrace + 200*time.Millisecond)
	if client.(*llmruntimetest.Client).DisconnectCalls() != 1 {
		t.Fatal("expected cleaned-up client to be disconnected")
	}
}

func TestCleanupRoomRemovesOnlyThatRoom(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	t1 := taskid.New(1, 1)
	t2 := taskid.New(1, 2)
	t3 := taskid.New(2, 1)
	opts := llmruntime.Options{Model: "m"}
	for _, task := range []taskid.ID{t1, t2, t3} {
		if _, _, _, err := p.GetOrCreate(context.Background(), task, opts); err != nil {
			t.Fatal(err)
		}
	}

	p.CleanupRoom(1)

	if _, isNew, _, _ := p.GetOrCreate(context.Background(), t1, opts); !isNew {
		t.Fatal("room 1 task should have been cleaned up")
	}
	if _, isNew, _, _ := p.GetOrCreate(context.Background(), t3, opts); isNew {
		t.Fatal("room 2 task should have survived")
	}
}

func TestGetKeysForAgent(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	opts := llmruntime.Options{Model: "m"}
	t1 := taskid.New(1, 5)
	t2 := taskid.New(2, 5)
	t3 := taskid.New(1, 6)
	for _, task := range []taskid.ID{t1, t2, t3} {
		if _, _, _, err := p.GetOrCreate(context.Background(), task, opts); err != nil {
			t.Fatal(err)
		}
	}

	keys := p.GetKeysForAgent(5)
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
}

func TestConnectRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	factory := func(opts llmruntime.Options) llmruntime.Client {
		c := llmruntimetest.New(opts)
		attempts++
		if attempts < 3 {
			c.WithConnectErr(errors.New("transport is not ready"))
		}
		return c
	}
	p := New(nil, factory)
	connectBackoffSave := connectBackoff
	connectBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { connectBackoff = connectBackoffSave }()

	_, isNew, _, err := p.GetOrCreate(context.Background(), taskid.New(1, 1), llmruntime.Options{Model: "m"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if !isNew {
		t.Fatal("expected new client")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 connect attempts, got %d", attempts)
	}
}

func TestConnectNonTransientErrorFailsImmediately(t *testing.T) {
	attempts := 0
	factory := func(opts llmruntime.Options) llmruntime.Client {
		attempts++
		return llmruntimetest.New(opts).WithConnectErr(errors.New("boom"))
	}
	p := New(nil, factory)

	_, _, _, err := p.GetOrCreate(context.Background(), taskid.New(1, 1), llmruntime.Options{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected no retries for a non-transient error, got %d attempts", attempts)
	}
}

func TestShutdownAllWaitsForBackgroundDisconnects(t *testing.T) {
	var created []*llmruntimetest.Client
	p := New(nil, factoryRecording(&created))
	task := taskid.New(1, 1)
	client, _, _, err := p.GetOrCreate(context.Background(), task, llmruntime.Options{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	p.Cleanup(task) // schedules a background disconnect

	p.ShutdownAll(context.Background())

	if client.(*llmruntimetest.Client).DisconnectCalls() != 1 {
		t.Fatal("expected ShutdownAll to wait out the scheduled background disconnect")
	}
}
