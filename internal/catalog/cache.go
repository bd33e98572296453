package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const (
	defaultCacheTTL = 5 * time.Minute
	activeListKey   = "catalog:active"
)

// CachedReader fronts a Reader with a redis cache. Cache failures fall
// through to the underlying reader.
type CachedReader struct {
	next   Reader
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

var _ Reader = (*CachedReader)(nil)

// NewCachedReader wraps next with a redis cache. A zero ttl uses the default.
func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedReader {
	if next == nil {
		panic("catalog: reader cannot be nil")
	}
	if client == nil {
		panic("catalog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedReader{
		next:   next,
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("moto.internal.catalog"),
		logger: logger,
	}
}

func (c *CachedReader) ListActive(ctx context.Context) ([]Item, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.list_active")
	defer span.End()

	var items []Item
	if c.load(ctx, activeListKey, &items) {
		span.SetAttributes(attribute.Bool("moto.catalog.cache_hit", true))
		return items, nil
	}

	items, err := c.next.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.store(ctx, activeListKey, items)
	return items, nil
}

func (c *CachedReader) GetByID(ctx context.Context, id int64) (*Item, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.get_item")
	defer span.End()
	span.SetAttributes(attribute.Int64("moto.catalog.item_id", id))

	key := itemKey(id)
	var item Item
	if c.load(ctx, key, &item) {
		span.SetAttributes(attribute.Bool("moto.catalog.cache_hit", true))
		return &item, nil
	}

	found, err := c.next.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	c.store(ctx, key, found)
	return found, nil
}

// Invalidate drops every cached catalog entry.
func (c *CachedReader) Invalidate(ctx context.Context) error {
	keys, err := c.redis.Keys(ctx, "catalog:*").Result()
	if err != nil {
		return fmt.Errorf("catalog: list cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("catalog: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedReader) load(ctx context.Context, key string, dest any) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("catalog cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedReader) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
}

func itemKey(id int64) string {
	return fmt.Sprintf("catalog:item:%d", id)
}
