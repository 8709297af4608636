// Package cache provides a thread-safe, TTL-based in-memory read-through
// cache with prefix invalidation.
//
// Grounded on backend/infrastructure/cache.py's CacheManager (sync lock
// for plain get/set, a separate lock serializing the async get-or-set
// path's factory call) and on the map+mutex shape of the teacher's
// internal/sessions.Manager. Unlike the Python original, all map reads
// and writes go through the same mutex (mu) regardless of entry point;
// asyncMu only ever serializes GetOrSetAsync callers against each other,
// since Go has no GIL to make two independent locks over one map safe.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// Stats reports cumulative cache counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	Size          int
	HitRate       float64
}

// Cache is a thread-safe TTL-entry map from string key to value.
//
// Keys follow "<kind>:<id>" naming (see the Key* helpers below);
// invalidation by prefix relies on that convention.
type Cache struct {
	log *slog.Logger

	mu      sync.Mutex // guards synchronous get/set
	asyncMu sync.Mutex // held across GetOrSetAsync's whole check-factory-install sequence

	entries map[string]entry

	hits, misses, invalidations int64
}

// New creates an empty Cache.
func New(log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		log:     log.With("component", "cache"),
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key, or (nil, false) if absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *Cache) setLocked(key string, value any, ttl time.Duration) {
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Invalidate removes key, reporting whether it existed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.invalidations++
		return true
	}
	return false
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			c.invalidations++
		}
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.log.Info("cache cleared", "entries_removed", n)
}

// CleanupExpired walks the table and deletes every expired entry.
func (c *Cache) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var removed int
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug("cache cleanup", "expired_entries_removed", removed)
	}
}

// Factory computes a value to install on a cache miss.
type Factory func() (any, error)

// GetOrSet returns the cached value for key, computing and installing it
// via factory on a miss.
func (c *Cache) GetOrSet(key string, ttl time.Duration, factory Factory) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := factory()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// AsyncFactory computes a value to install on a cache miss; it receives a
// context so a caller can time-box slow lookups (e.g. a DB query).
type AsyncFactory func(ctx context.Context) (any, error)

// GetOrSetAsync mirrors CacheManager.get_or_set_async: asyncMu serializes
// the whole check-factory-install sequence per cache (so two concurrent
// misses on the same key don't both run factory), while every actual
// read/write of entries goes through mu like every other method, so a
// concurrent Get/Set/InvalidatePrefix from elsewhere never races on the
// map itself.
func (c *Cache) GetOrSetAsync(ctx context.Context, key string, ttl time.Duration, factory AsyncFactory) (any, error) {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	c.Set(key, v, ttl)
	return v, nil
}

// Stats returns a snapshot of cumulative counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Invalidations: c.invalidations,
		Size:          len(c.entries),
		HitRate:       hitRate,
	}
}

// LogStats emits the current Stats at info level.
func (c *Cache) LogStats() {
	s := c.Stats()
	c.log.Info("cache stats",
		"hits", s.Hits,
		"misses", s.Misses,
		"hit_rate_pct", s.HitRate,
		"size", s.Size,
		"invalidations", s.Invalidations,
	)
}

// Key builders for consistent "<kind>:<id>" naming.

func AgentKey(agentID int64) string         { return keyOf("agent_obj", agentID) }
func AgentConfigKey(agentID int64) string   { return keyOf("agent_config", agentID) }
func RoomKey(roomID int64) string           { return keyOf("room_obj", roomID) }
func RoomAgentsKey(roomID int64) string     { return keyOf("room_agents", roomID) }
func RoomMessagesKey(roomID int64) string   { return keyOf("room_messages", roomID) }
func ChattingAgentsKey(roomID int64) string { return keyOf("chatting_agents", roomID) }

func keyOf(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}
