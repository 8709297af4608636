package tape

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-tape/internal/model"
)

// fakeStore is an in-memory stand-in for the four store interfaces,
// enough to drive the Response Generator and Turn Scheduler in tests
// without a real database.
type fakeStore struct {
	mu sync.Mutex

	rooms    map[int64]*model.Room
	agents   map[int64]*model.Agent
	roster   map[int64][]int64 // roomID -> agentIDs, in seating order
	messages []*model.Message
	nextMsg  int64
	sessions map[[2]int64]*model.RoomAgentSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[int64]*model.Room),
		agents:   make(map[int64]*model.Agent),
		roster:   make(map[int64][]int64),
		sessions: make(map[[2]int64]*model.RoomAgentSession),
	}
}

func (s *fakeStore) addRoom(r *model.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

func (s *fakeStore) addAgent(roomID int64, a *model.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	s.roster[roomID] = append(s.roster[roomID], a.ID)
}

// -- RoomStore --

func (s *fakeStore) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return room, nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) ListForOwner(ctx context.Context, ownerID string) ([]*model.Room, error) {
	return nil, nil
}

func (s *fakeStore) ListAll(ctx context.Context) ([]*model.Room, error) { return nil, nil }

func (s *fakeStore) ListActiveForScheduling(ctx context.Context, activeSince time.Time, limit int) ([]*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Room
	for _, r := range s.rooms {
		if r.IsPaused || r.IsFinished {
			continue
		}
		if r.LastActivityAt.Before(activeSince) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) UpdateFlags(ctx context.Context, id int64, maxInteractions *int, isPaused *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	if maxInteractions != nil {
		r.MaxInteractions = maxInteractions
	}
	if isPaused != nil {
		r.IsPaused = *isPaused
	}
	return nil
}

func (s *fakeStore) SetFinished(ctx context.Context, id int64, finished bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		r.IsFinished = finished
	}
	return nil
}

func (s *fakeStore) TouchLastActivity(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		r.LastActivityAt = at
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

// -- AgentStore --

func (s *fakeStore) ListForRoom(ctx context.Context, roomID int64) ([]*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Agent
	for _, id := range s.roster[roomID] {
		if a, ok := s.agents[id]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetAgent backs agentAdapter.Get (AgentStore.Get): fakeStore's own Get
// is already RoomStore.Get, so the agent lookup needs a distinct name.
func (s *fakeStore) GetAgent(ctx context.Context, id int64) (*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// -- MessageStore --

func (s *fakeStore) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	cp := *msg
	cp.ID = s.nextMsg
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, &cp)
	return &cp, nil
}

func (s *fakeStore) ListMessagesForRoom(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) ListSince(ctx context.Context, roomID int64, sinceID int64) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.messages {
		if m.RoomID == roomID && m.ID > sinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) LastAssistantMessageAt(ctx context.Context, roomID, agentID int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, m := range s.messages {
		if m.RoomID != roomID || m.AgentID == nil || *m.AgentID != agentID {
			continue
		}
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	return last, nil
}

func (s *fakeStore) DeleteForRoom(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*model.Message
	for _, m := range s.messages {
		if m.RoomID != roomID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

// -- RoomAgentSessionStore --

func (s *fakeStore) GetSession(ctx context.Context, roomID, agentID int64) (*model.RoomAgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[[2]int64{roomID, agentID}]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) Upsert(ctx context.Context, sess *model.RoomAgentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[[2]int64{sess.RoomID, sess.AgentID}] = &cp
	return nil
}

// -- view helpers for assertions --

func (s *fakeStore) allMessages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *fakeStore) roomFinished(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	return ok && r.IsFinished
}

// agentAdapter, messageAdapter, and sessionAdapter let one fakeStore
// satisfy AgentStore/MessageStore/RoomAgentSessionStore despite Get and
// Create colliding in name with RoomStore's methods of the same name:
// the Orchestrator only ever sees these thin wrappers through the
// store.* interface types. fakeStore itself already satisfies RoomStore
// directly.
type agentAdapter struct{ *fakeStore }
type messageAdapter struct{ *fakeStore }
type sessionAdapter struct{ *fakeStore }

func (a agentAdapter) Get(ctx context.Context, id int64) (*model.Agent, error) {
	return a.fakeStore.GetAgent(ctx, id)
}

func (m messageAdapter) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	return m.fakeStore.CreateMessage(ctx, msg)
}

func (m messageAdapter) ListForRoom(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	return m.fakeStore.ListMessagesForRoom(ctx, roomID, limit)
}

func (sa sessionAdapter) Get(ctx context.Context, roomID, agentID int64) (*model.RoomAgentSession, error) {
	return sa.fakeStore.GetSession(ctx, roomID, agentID)
}
