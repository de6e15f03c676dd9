package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is one key's fixed-window state.
type Bucket struct {
	Tokens  int
	ResetAt time.Time
}

// UpdateFunc computes the next bucket from the current one. exists is false
// when the key has no bucket yet.
type UpdateFunc func(current Bucket, exists bool) Bucket

// Store persists buckets. Update must apply fn atomically per key; it may
// call fn more than once when it retries.
type Store interface {
	Update(ctx context.Context, key string, fn UpdateFunc) (Bucket, error)
}

// MemoryStore is the default process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]Bucket
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]Bucket)}
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.buckets[key]
	next := fn(cur, ok)
	s.buckets[key] = next
	return next, nil
}

// Prune drops buckets whose window ended before now and returns how many remain.
func (s *MemoryStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.buckets {
		if now.After(b.ResetAt) {
			delete(s.buckets, k)
		}
	}
	return len(s.buckets)
}

// Len returns the number of buckets held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
