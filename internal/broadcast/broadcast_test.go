package broadcast

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSubscribeReceivesBroadcast(t *testing.T) {
	b := New(nil)
	q := b.Subscribe(1)
	defer b.Unsubscribe(1, q)

	b.Broadcast(1, Event{Type: "stream_start", Data: map[string]any{"agent_id": 2}})

	select {
	case raw := <-q.C():
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatal(err)
		}
		if evt.Type != "stream_start" {
			t.Fatalf("got type %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestBroadcastToRoomWithNoSubscribersIsNoop(t *testing.T) {
	b := New(nil)
	b.Broadcast(42, Event{Type: "keepalive"}) // must not panic or block
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	q := b.Subscribe(1)
	b.Unsubscribe(1, q)
	b.Broadcast(1, Event{Type: "x"})

	select {
	case v := <-q.C():
		t.Fatalf("unsubscribed queue received event: %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastDropsOnFullQueueWithoutBlocking(t *testing.T) {
	b := NewWithCapacity(nil, 1)
	q := b.Subscribe(1)
	defer b.Unsubscribe(1, q)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Broadcast(1, Event{Type: "content_delta"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber queue")
	}
}

func TestHasSubscribersAndCount(t *testing.T) {
	b := New(nil)
	if b.HasSubscribers(1) {
		t.Fatal("expected no subscribers initially")
	}
	q1 := b.Subscribe(1)
	q2 := b.Subscribe(1)
	if !b.HasSubscribers(1) || b.SubscriberCount(1) != 2 {
		t.Fatalf("got count %d", b.SubscriberCount(1))
	}
	b.Unsubscribe(1, q1)
	b.Unsubscribe(1, q2)
	if b.HasSubscribers(1) {
		t.Fatal("expected no subscribers after unsubscribing all")
	}
}

func TestShutdownSignalsSentinelToSubscribers(t *testing.T) {
	b := New(nil)
	q := b.Subscribe(1)
	b.Shutdown()

	select {
	case v := <-q.C():
		if v != nil {
			t.Fatalf("expected nil sentinel, got %s", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for shutdown sentinel")
	}
}
