package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/clock"
)

// MemoryStore keeps correlation entries in process memory. Expiry is
// enforced lazily on read and by the periodic sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	clock   clock.Clock
}

func NewMemoryStore(ttl time.Duration, clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		clock:   clk,
	}
}

func (s *MemoryStore) Put(_ context.Context, token string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	s.mu.Lock()
	s.entries[token] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(entry, s.clock.Now()) {
		s.mu.Lock()
		delete(s.entries, token)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	for _, entry := range s.entries {
		if s.expired(entry, now) {
			continue
		}
		stats.Count++
		created := entry.CreatedAt
		if stats.Oldest == nil || created.Before(*stats.Oldest) {
			t := created
			stats.Oldest = &t
		}
		if stats.Newest == nil || created.After(*stats.Newest) {
			t := created
			stats.Newest = &t
		}
	}
	return stats, nil
}

func (s *MemoryStore) expired(entry Entry, now time.Time) bool {
	return now.Sub(entry.CreatedAt) >= s.ttl
}
