package cache

import (
	"context"
	"sort"
	"sync"
)

// Entry is one ranked element of an in-memory channel.
type Entry struct {
	Score   int64
	Payload []byte
}

// MemoryStore is an in-process Store used by tests and as a degraded fallback
// when Redis is unreachable. Channels are kept sorted by score with insertion
// order preserved among equal scores.
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string][]Entry
	values   map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels: make(map[string][]Entry),
		values:   make(map[string][]byte),
	}
}

// AppendRanked appends and prunes under one lock acquisition, which gives the
// same atomicity guarantee as the Redis transaction.
func (s *MemoryStore) AppendRanked(ctx context.Context, channel string, score int64, payload []byte, pruneBelow int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.channels[channel], Entry{Score: score, Payload: payload})

	// Events normally arrive in score order; the stable sort is a no-op then
	// and keeps insertion order for equal scores otherwise.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score < entries[j].Score })

	// Prune strictly-older entries; the cutoff itself survives.
	cut := sort.Search(len(entries), func(i int) bool { return entries[i].Score >= pruneBelow })
	s.channels[channel] = entries[cut:]

	return nil
}

// SetValue stores the payload under the key, overwriting any previous value.
func (s *MemoryStore) SetValue(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.values[key] = cp
	return nil
}

// Entries returns a copy of the channel's current contents in rank order.
func (s *MemoryStore) Entries(channel string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.channels[channel]))
	copy(out, s.channels[channel])
	return out
}

// Value returns the payload stored under the key, or nil when absent.
func (s *MemoryStore) Value(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}
