package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryProcessedStore is a process-local Deduper for development and tests.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

var _ Deduper = (*MemoryProcessedStore)(nil)

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]time.Time), now: time.Now}
}

func memoryKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func (s *MemoryProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[memoryKey(provider, eventID)]
	return ok, nil
}

func (s *MemoryProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("events: event id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(provider, eventID)
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = s.now()
	return true, nil
}

func (s *MemoryProcessedStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, k)
			n++
		}
	}
	return n, nil
}
