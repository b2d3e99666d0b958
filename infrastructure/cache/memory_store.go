package cache

import (
	"context"
	"sort"
	"sync"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
)

// MemoryStore keeps stores in process memory. It is the default backend and the
// fake used throughout the tests.
type MemoryStore struct {
	mu     sync.RWMutex
	stores map[string]map[string]*model.CachedEntry
}

var (
	_ repository.ICacheStore   = (*MemoryStore)(nil)
	_ repository.ICacheSweeper = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stores: make(map[string]map[string]*model.CachedEntry)}
}

func (s *MemoryStore) Open(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[name]; !ok {
		s.stores[name] = make(map[string]*model.CachedEntry)
	}
	return nil
}

func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, name)
	return nil
}

func (s *MemoryStore) Match(_ context.Context, name, key string) (*model.CachedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.stores[name][key]
	if !ok {
		return nil, nil
	}
	return cloneEntry(entry), nil
}

func (s *MemoryStore) Put(_ context.Context, name string, entry *model.CachedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[name]
	if !ok {
		store = make(map[string]*model.CachedEntry)
		s.stores[name] = store
	}
	store[entry.Key] = cloneEntry(entry)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stores[name]), nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, name string, cutoffUnixNano int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.stores[name] {
		if entry.StoredAt.UnixNano() < cutoffUnixNano {
			delete(s.stores[name], key)
			removed++
		}
	}
	return removed, nil
}

func cloneEntry(e *model.CachedEntry) *model.CachedEntry {
	out := *e
	out.Body = append([]byte(nil), e.Body...)
	out.Headers = make(map[string][]string, len(e.Headers))
	for k, v := range e.Headers {
		out.Headers[k] = append([]string(nil), v...)
	}
	return &out
}
