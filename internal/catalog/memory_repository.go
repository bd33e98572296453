package catalog

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is a Reader over a fixed item set, used for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[int64]Item
}

var _ Reader = (*InMemoryRepository)(nil)

// NewInMemoryRepository seeds the repository with items.
func NewInMemoryRepository(items ...Item) *InMemoryRepository {
	r := &InMemoryRepository{items: make(map[int64]Item, len(items))}
	for _, item := range items {
		r.items[item.ID] = item
	}
	return r
}

// Put inserts or replaces an item.
func (r *InMemoryRepository) Put(item Item) {
	r.mu.Lock()
	r.items[item.ID] = item
	r.mu.Unlock()
}

func (r *InMemoryRepository) ListActive(ctx context.Context) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		if item.Active {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents == out[j].PriceCents {
			return out[i].ID < out[j].ID
		}
		return out[i].PriceCents < out[j].PriceCents
	})
	return out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok || !item.Active {
		return nil, ErrNotFound
	}
	return &item, nil
}
