// Package broadcast fans out JSON-encoded SSE events to per-room
// subscriber queues.
//
// Grounded on backend/infrastructure/sse.py's EventBroadcaster (a
// map[room][]queue guarded by one lock, non-blocking put so a slow
// subscriber can never stall agent generation) and on the
// bus.EventPublisher interface shape already present in the teacher's
// internal/bus/types.go.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// DefaultQueueCapacity is the default bound on a subscriber's event queue.
const DefaultQueueCapacity = 256

// Event is one SSE frame: a type discriminator plus a JSON-able payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Queue is one subscriber's bounded, droppable event channel. The raw
// channel element is the already-JSON-encoded event so slow subscribers
// never force re-encoding work onto the broadcasting goroutine.
type Queue struct {
	ch chan []byte
}

// C returns the receive side of the queue for a subscriber's read loop.
func (q *Queue) C() <-chan []byte { return q.ch }

// Broadcaster fans out events to per-room subscriber queues.
type Broadcaster struct {
	log *slog.Logger

	mu          sync.Mutex
	subscribers map[int64]map[*Queue]struct{}
	capacity    int
	shutdown    bool
}

// New creates a Broadcaster with the default queue capacity.
func New(log *slog.Logger) *Broadcaster {
	return NewWithCapacity(log, DefaultQueueCapacity)
}

// NewWithCapacity creates a Broadcaster with a custom per-subscriber queue capacity.
func NewWithCapacity(log *slog.Logger, capacity int) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		log:         log.With("component", "broadcast"),
		subscribers: make(map[int64]map[*Queue]struct{}),
		capacity:    capacity,
	}
}

// Subscribe creates and registers a new subscriber queue for a room.
func (b *Broadcaster) Subscribe(roomID int64) *Queue {
	q := &Queue{ch: make(chan []byte, b.capacity)}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[roomID]
	if !ok {
		subs = make(map[*Queue]struct{})
		b.subscribers[roomID] = subs
	}
	subs[q] = struct{}{}
	b.log.Debug("subscriber added", "room_id", roomID, "total", len(subs))
	return q
}

// Unsubscribe removes a subscriber queue from a room.
func (b *Broadcaster) Unsubscribe(roomID int64, q *Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[roomID]
	if !ok {
		return
	}
	delete(subs, q)
	if len(subs) == 0 {
		delete(b.subscribers, roomID)
	}
	b.log.Debug("subscriber removed", "room_id", roomID, "remaining", len(subs))
}

// Broadcast delivers event to every subscriber of a room. Delivery is
// non-blocking: a full queue drops the event rather than stalling the
// caller (typically the agent generation pipeline).
func (b *Broadcaster) Broadcast(roomID int64, event Event) {
	b.mu.Lock()
	subs := b.subscribers[roomID]
	if len(subs) == 0 {
		b.mu.Unlock()
		return
	}
	queues := make([]*Queue, 0, len(subs))
	for q := range subs {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		b.log.Error("failed to marshal broadcast event", "type", event.Type, "error", err)
		return
	}

	for _, q := range queues {
		select {
		case q.ch <- data:
		default:
			b.log.Warn("sse queue full, dropping event", "room_id", roomID, "type", event.Type)
		}
	}
}

// HasSubscribers reports whether a room currently has any subscriber.
func (b *Broadcaster) HasSubscribers(roomID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[roomID]) > 0
}

// SubscriberCount reports the number of active subscribers for a room.
func (b *Broadcaster) SubscriberCount(roomID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[roomID])
}

// Shutdown puts a nil sentinel on every subscriber queue so read loops
// can observe shutdown and exit.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return
	}
	b.shutdown = true
	for _, subs := range b.subscribers {
		for q := range subs {
			select {
			case q.ch <- nil:
			default:
			}
		}
	}
	b.log.Info("broadcaster shutdown signalled")
}
