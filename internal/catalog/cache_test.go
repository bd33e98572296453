package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

type countingReader struct {
	Reader
	listCalls int
	getCalls  int
}

func (c *countingReader) ListActive(ctx context.Context) ([]Item, error) {
	c.listCalls++
	return c.Reader.ListActive(ctx)
}

func (c *countingReader) GetByID(ctx context.Context, id int64) (*Item, error) {
	c.getCalls++
	return c.Reader.GetByID(ctx, id)
}

func newTestCache(t *testing.T, items ...Item) (*CachedReader, *countingReader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingReader{Reader: NewInMemoryRepository(items...)}
	return NewCachedReader(inner, client, time.Minute, logging.Default()), inner, mr
}

func TestCachedReader_ListActiveHitsCache(t *testing.T) {
	cache, inner, _ := newTestCache(t, Item{ID: 1, Name: "Volt", Active: true})
	ctx := context.Background()

	first, err := cache.ListActive(ctx)
	require.NoError(t, err)
	second, err := cache.ListActive(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.listCalls)
}

func TestCachedReader_GetByIDCachesAndExpires(t *testing.T) {
	cache, inner, mr := newTestCache(t, Item{ID: 3, Name: "Raya", Active: true})
	ctx := context.Background()

	_, err := cache.GetByID(ctx, 3)
	require.NoError(t, err)
	_, err = cache.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.getCalls)

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.getCalls)
}

func TestCachedReader_NotFoundIsNotCached(t *testing.T) {
	cache, inner, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cache.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, inner.getCalls)
}

func TestCachedReader_FallsThroughWhenRedisDown(t *testing.T) {
	cache, inner, mr := newTestCache(t, Item{ID: 1, Name: "Volt", Active: true})
	mr.Close()

	items, err := cache.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, inner.listCalls)
}

func TestCachedReader_Invalidate(t *testing.T) {
	cache, inner, _ := newTestCache(t, Item{ID: 1, Name: "Volt", Active: true})
	ctx := context.Background()

	_, _ = cache.ListActive(ctx)
	require.NoError(t, cache.Invalidate(ctx))
	_, _ = cache.ListActive(ctx)
	assert.Equal(t, 2, inner.listCalls)
}
