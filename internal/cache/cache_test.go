package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetGetImmediate(t *testing.T) {
	c := New(nil)
	c.Set("agent_obj:1", "value", time.Minute)
	v, ok := c.Get("agent_obj:1")
	if !ok || v.(string) != "value" {
		t.Fatalf("got (%v, %v), want (value, true)", v, ok)
	}
}

func TestGetExpired(t *testing.T) {
	c := New(nil)
	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(nil)
	c.Set("room_obj:1", 1, time.Minute)
	c.Set("room_agents:1", 1, time.Minute)
	c.Set("room_obj:2", 2, time.Minute)
	c.InvalidatePrefix("room_obj:1")
	if _, ok := c.Get("room_obj:1"); ok {
		t.Fatal("room_obj:1 should be invalidated")
	}
	if _, ok := c.Get("room_agents:1"); !ok {
		t.Fatal("room_agents:1 should not match prefix room_obj:1")
	}
	if _, ok := c.Get("room_obj:2"); !ok {
		t.Fatal("room_obj:2 should not be invalidated")
	}
}

func TestGetOrSetComputesOnce(t *testing.T) {
	c := New(nil)
	calls := 0
	factory := func() (any, error) {
		calls++
		return "computed", nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet("k", time.Minute, factory)
		if err != nil {
			t.Fatal(err)
		}
		if v.(string) != "computed" {
			t.Fatalf("got %v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
}

func TestGetOrSetPropagatesFactoryError(t *testing.T) {
	c := New(nil)
	wantErr := errors.New("boom")
	_, err := c.GetOrSet("k", time.Minute, func() (any, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("a failed factory must not install a value")
	}
}

func TestGetOrSetAsync(t *testing.T) {
	c := New(nil)
	calls := 0
	factory := func(ctx context.Context) (any, error) {
		calls++
		return "async-value", nil
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		v, err := c.GetOrSetAsync(ctx, "k", time.Minute, factory)
		if err != nil {
			t.Fatal(err)
		}
		if v.(string) != "async-value" {
			t.Fatalf("got %v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	c := New(nil)
	c.Get("missing")
	c.Set("k", 1, time.Minute)
	c.Get("k")
	c.Get("k")

	s := c.Stats()
	if s.Misses != 1 || s.Hits != 2 {
		t.Fatalf("got hits=%d misses=%d, want hits=2 misses=1", s.Hits, s.Misses)
	}
	if s.Size != 1 {
		t.Fatalf("got size=%d, want 1", s.Size)
	}
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	c := New(nil)
	c.Set("fresh", 1, time.Minute)
	c.Set("stale", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	c.CleanupExpired()

	s := c.Stats()
	if s.Size != 1 {
		t.Fatalf("got size=%d, want 1 (only fresh should remain)", s.Size)
	}
}

func TestKeyBuilders(t *testing.T) {
	if got, want := RoomKey(7), "room_obj:7"; got != want {
		t.Errorf("RoomKey() = %q, want %q", got, want)
	}
	if got, want := AgentConfigKey(3), "agent_config:3"; got != want {
		t.Errorf("AgentConfigKey() = %q, want %q", got, want)
	}
}
