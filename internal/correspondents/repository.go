package correspondents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists correspondents.
type Repository interface {
	GetByAddress(ctx context.Context, address string) (*Correspondent, error)
	GetByID(ctx context.Context, id string) (*Correspondent, error)
	// GetOrCreate returns the correspondent for address, creating it in the
	// initial state when unseen. Concurrent callers for one address converge
	// on a single row.
	GetOrCreate(ctx context.Context, address, displayName string) (*Correspondent, bool, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error
	SetState(ctx context.Context, id string, state State) error
	Touch(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, filter ListFilter) ([]*Correspondent, error)
}

// InMemoryRepository is a Repository used for local runs and tests.
type InMemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*Correspondent
	byAddress map[string]string
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:      make(map[string]*Correspondent),
		byAddress: make(map[string]string),
	}
}

func (r *InMemoryRepository) GetByAddress(ctx context.Context, address string) (*Correspondent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAddress[NormalizeAddress(address)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r.byID[id]
	return &c, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Correspondent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) GetOrCreate(ctx context.Context, address, displayName string) (*Correspondent, bool, error) {
	addr := NormalizeAddress(address)
	if addr == "" {
		return nil, false, ErrInvalidAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byAddress[addr]; ok {
		c := *r.byID[id]
		return &c, false, nil
	}

	now := time.Now().UTC()
	c := &Correspondent{
		ID:            uuid.NewString(),
		WhatsAppPhone: addr,
		Name:          displayName,
		State:         StateInitial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.byID[c.ID] = c
	r.byAddress[addr] = c.ID
	cp := *c
	return &cp, true, nil
}

func (r *InMemoryRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error {
	return r.mutate(id, func(c *Correspondent) error {
		update.apply(c)
		return nil
	})
}

func (r *InMemoryRepository) SetState(ctx context.Context, id string, state State) error {
	if !state.Valid() {
		return ErrInvalidState
	}
	return r.mutate(id, func(c *Correspondent) error {
		c.State = state
		return nil
	})
}

func (r *InMemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.mutate(id, func(c *Correspondent) error {
		t := at.UTC()
		c.LastMessageAt = &t
		return nil
	})
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Correspondent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Correspondent, 0, len(r.byID))
	for _, c := range r.byID {
		if filter.State != "" && c.State != filter.State {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return []*Correspondent{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) mutate(id string, fn func(*Correspondent) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}
