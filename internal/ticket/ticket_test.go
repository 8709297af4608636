package ticket

import (
	"testing"
	"time"
)

func TestCreateThenValidateSucceedsOnce(t *testing.T) {
	m := New()
	tok, err := m.Create("user-1", "guest", 5)
	if err != nil {
		t.Fatal(err)
	}

	data, ok := m.Validate(tok, 5)
	if !ok {
		t.Fatal("expected first validation to succeed")
	}
	if data.UserID != "user-1" || data.Role != "guest" || data.RoomID != 5 {
		t.Fatalf("got %+v", data)
	}

	if _, ok := m.Validate(tok, 5); ok {
		t.Fatal("expected second validation of the same ticket to fail")
	}
}

func TestValidateRejectsRoomMismatch(t *testing.T) {
	m := New()
	tok, _ := m.Create("user-1", "guest", 5)
	if _, ok := m.Validate(tok, 6); ok {
		t.Fatal("expected room mismatch to fail validation")
	}
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	m := New()
	if _, ok := m.Validate("does-not-exist", 1); ok {
		t.Fatal("expected unknown token to fail")
	}
}

func TestValidateRejectsExpiredTicket(t *testing.T) {
	m := New()
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }

	tok, _ := m.Create("user-1", "guest", 5)
	fakeNow = fakeNow.Add(TTL + time.Second)

	if _, ok := m.Validate(tok, 5); ok {
		t.Fatal("expected expired ticket to fail validation")
	}
}

func TestOpportunisticCleanupRemovesExpiredEntries(t *testing.T) {
	m := New()
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }

	stale, _ := m.Create("old-user", "guest", 1)
	fakeNow = fakeNow.Add(TTL + time.Second)

	// Advance past the cleanup interval and trigger a sweep via any call.
	fakeNow = fakeNow.Add(CleanupInterval)
	_, _ = m.Create("new-user", "guest", 2)

	m.mu.Lock()
	_, stillPresent := m.tickets[stale]
	m.mu.Unlock()
	if stillPresent {
		t.Fatal("expired ticket should have been swept")
	}
}
