// Package presence tracks which identities are currently online.
//
// Presence is best effort: the in-memory store starts empty on every
// process start and nothing is persisted.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is one identity and the last time it was seen.
type Entry struct {
	Identity string    `json:"identity"`
	LastSeen time.Time `json:"last_seen"`
}

// Store records heartbeats and answers who is active.
type Store interface {
	MarkOnline(ctx context.Context, identity string) error
	MarkOffline(ctx context.Context, identity string) error
	Active(ctx context.Context) ([]Entry, error)
}

// MemoryStore keeps presence in a process-local map.
type MemoryStore struct {
	mu         sync.RWMutex
	seen       map[string]time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewMemoryStore creates a store. Entries older than staleAfter are
// treated as offline; zero disables expiry.
func NewMemoryStore(staleAfter time.Duration) *MemoryStore {
	return &MemoryStore{
		seen:       make(map[string]time.Time),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// MarkOnline upserts the current time for identity. Empty identities are ignored.
func (m *MemoryStore) MarkOnline(_ context.Context, identity string) error {
	if identity == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[identity] = m.now().UTC()
	return nil
}

// MarkOffline removes identity if present.
func (m *MemoryStore) MarkOffline(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, identity)
	return nil
}

// Active returns the non-stale entries at call time, sorted by identity.
func (m *MemoryStore) Active(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]Entry, 0, len(m.seen))
	for id, ts := range m.seen {
		if m.isStale(ts, now) {
			continue
		}
		out = append(out, Entry{Identity: id, LastSeen: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// Evict deletes stale entries and returns how many were removed.
func (m *MemoryStore) Evict() int {
	if m.staleAfter <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int
	for id, ts := range m.seen {
		if m.isStale(ts, now) {
			delete(m.seen, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore) isStale(ts, now time.Time) bool {
	return m.staleAfter > 0 && now.Sub(ts) > m.staleAfter
}

// IsOnline reports whether identity appears in entries.
func IsOnline(entries []Entry, identity string) bool {
	for _, e := range entries {
		if e.Identity == identity {
			return true
		}
	}
	return false
}
