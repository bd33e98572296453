package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/moto-assistant/internal/catalog"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; catalog cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildCatalog returns the Postgres catalog, fronted by the redis cache when
// a client is available.
func BuildCatalog(pool *pgxpool.Pool, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) catalog.Reader {
	var reader catalog.Reader = catalog.NewPostgresRepository(pool)
	if redisClient == nil {
		return reader
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.CatalogCacheTTL
	}
	return catalog.NewCachedReader(reader, redisClient, ttl, logger)
}

// BusinessLocation loads the configured timezone, falling back to
// America/Mexico_City and then UTC.
func BusinessLocation(cfg *appconfig.Config, logger *logging.Logger) *time.Location {
	if logger == nil {
		logger = logging.Default()
	}
	name := "America/Mexico_City"
	if cfg != nil && strings.TrimSpace(cfg.BusinessTimezone) != "" {
		name = strings.TrimSpace(cfg.BusinessTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	logger.Warn("invalid business timezone", "timezone", name, "error", err)
	if loc, err := time.LoadLocation("America/Mexico_City"); err == nil {
		return loc
	}
	return time.UTC
}
