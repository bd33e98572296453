package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps turns in process memory in append order.
type InMemoryStore struct {
	mu         sync.RWMutex
	turns      map[string][]Turn
	messageIDs map[string]struct{}
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:      make(map[string][]Turn),
		messageIDs: make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Append(ctx context.Context, turn *Turn) error {
	if turn == nil {
		return errors.New("history: turn cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.WhatsAppMessageID != "" {
		if _, seen := s.messageIDs[turn.WhatsAppMessageID]; seen {
			return ErrDuplicateTurn
		}
		s.messageIDs[turn.WhatsAppMessageID] = struct{}{}
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns[turn.CorrespondentID] = append(s.turns[turn.CorrespondentID], *turn)
	return nil
}

func (s *InMemoryStore) Recent(ctx context.Context, correspondentID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[correspondentID]
	if limit <= 0 {
		return []Turn{}, nil
	}
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}
	out := make([]Turn, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (s *InMemoryStore) List(ctx context.Context, correspondentID string, limit int) ([]Turn, error) {
	out, err := s.Recent(ctx, correspondentID, limit)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}
