package store

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryStore is a FixtureStore kept in process memory. It backs the CLI when
// the on-disk ledger is disabled.
type MemoryStore struct {
	mu       sync.RWMutex
	fixtures map[string]Fixture
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fixtures: make(map[string]Fixture),
	}
}

func copyFixture(f Fixture) Fixture {
	f.Ports = maps.Clone(f.Ports)
	return f
}

// Record implements FixtureStore.Record
func (s *MemoryStore) Record(_ context.Context, f *Fixture) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := copyFixture(*f)
	if old, ok := s.fixtures[f.ID]; ok {
		rec.CreatedAt = old.CreatedAt
	}
	s.fixtures[f.ID] = rec
	return nil
}

// Get implements FixtureStore.Get
func (s *MemoryStore) Get(_ context.Context, id string) (*Fixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fixtures[id]
	if !ok {
		return nil, ErrFixtureNotFound
	}
	out := copyFixture(f)
	return &out, nil
}

// List implements FixtureStore.List
func (s *MemoryStore) List(_ context.Context, filter FixtureFilter) ([]Fixture, int, error) {
	s.mu.RLock()
	matched := make([]Fixture, 0, len(s.fixtures))
	for _, f := range s.fixtures {
		if filter.Session != "" && f.Session != filter.Session {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		matched = append(matched, copyFixture(f))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Offset >= total {
		return []Fixture{}, total, nil
	}
	end := filter.Offset + filter.limit()
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

// Delete implements FixtureStore.Delete
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fixtures[id]; !ok {
		return ErrFixtureNotFound
	}
	delete(s.fixtures, id)
	return nil
}

// Close implements FixtureStore.Close
func (s *MemoryStore) Close() error {
	return nil
}

var _ FixtureStore = (*MemoryStore)(nil)
