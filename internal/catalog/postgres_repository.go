package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads motorcycles from the relational database.
type PostgresRepository struct {
	db querier
}

var _ Reader = (*PostgresRepository)(nil)

const itemColumns = `id, name, model, price_cents, battery_capacity, range_km, max_speed_kmh,
		charging_time, description, image_url, category, is_active`

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("catalog: querier required")
	}
	return &PostgresRepository{db: q}
}

// ListActive returns every active item ordered by price.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM motorcycles WHERE is_active = TRUE ORDER BY price_cents, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate items: %w", err)
	}
	return items, nil
}

// GetByID fetches a single active item.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM motorcycles WHERE id = $1 AND is_active = TRUE`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get item %d: %w", id, err)
	}
	return &item, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Model,
		&item.PriceCents,
		&item.BatteryCapacity,
		&item.Range,
		&item.MaxSpeedKmh,
		&item.ChargingTime,
		&item.Description,
		&item.ImageURL,
		&item.Category,
		&item.Active,
	)
	return item, err
}
