package aggregate

import (
	"sync"

	"github.com/okian/playstack/internal/domain/model"
)

// Store holds at most one CacheEntry per team. Put replaces the slot.
type Store interface {
	Get(teamID string) (model.CacheEntry, bool)
	Put(entry model.CacheEntry)
	Delete(teamID string)
	Len() int
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.CacheEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.CacheEntry)}
}

func (s *MemoryStore) Get(teamID string) (model.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[teamID]
	return e, ok
}

func (s *MemoryStore) Put(entry model.CacheEntry) {
	s.mu.Lock()
	s.entries[entry.TeamID] = entry
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(teamID string) {
	s.mu.Lock()
	delete(s.entries, teamID)
	s.mu.Unlock()
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
