package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/moto-assistant/internal/appointments"
	"github.com/wolfman30/moto-assistant/internal/catalog"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/events"
	"github.com/wolfman30/moto-assistant/internal/history"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Stores groups the persistence layer shared by the API and the worker.
type Stores struct {
	Pool           *pgxpool.Pool
	SQL            *sql.DB
	Correspondents correspondents.Repository
	History        history.Store
	Catalog        catalog.Reader
	Appointments   appointments.Repository
	Deduper        events.Deduper
}

// BuildStores connects to Postgres when DATABASE_URL is set and otherwise
// returns in-memory stores.
func BuildStores(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		return &Stores{
			Correspondents: correspondents.NewInMemoryRepository(),
			History:        history.NewInMemoryStore(),
			Catalog:        catalog.NewInMemoryRepository(),
			Appointments:   appointments.NewInMemoryRepository(),
			Deduper:        events.NewMemoryProcessedStore(),
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: open history db: %w", err)
	}

	return &Stores{
		Pool:           pool,
		SQL:            sqlDB,
		Correspondents: correspondents.NewPostgresRepository(pool),
		History:        history.NewSQLStore(sqlDB),
		Catalog:        BuildCatalog(pool, redisClient, cfg, logger),
		Appointments:   appointments.NewPostgresRepository(pool),
		Deduper:        events.NewProcessedStore(pool),
	}, nil
}

// Ping checks database connectivity; in-memory stores are always healthy.
func (s *Stores) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases database handles.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

type eventPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartEventRetention drops processed-event records older than retention on
// every interval tick until ctx is cancelled.
func (s *Stores) StartEventRetention(ctx context.Context, retention, interval time.Duration, logger *logging.Logger) {
	purger, ok := s.Deduper.(eventPurger)
	if !ok || retention <= 0 || interval <= 0 {
		return
	}
	if logger == nil {
		logger = logging.Default()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := purger.PurgeOlderThan(ctx, now.Add(-retention))
				if err != nil {
					logger.Warn("processed event purge failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("purged processed events", "count", n)
				}
			}
		}
	}()
}
