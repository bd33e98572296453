package correspondents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const uniqueViolation = "23505"

var tracer = otel.Tracer("moto.internal.correspondents")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores correspondents in the relational database.
type PostgresRepository struct {
	db rowQuerier
}

var _ Repository = (*PostgresRepository)(nil)

const selectColumns = `SELECT id, whatsapp_phone, name, email, phone, budget_cents, interests, usage_type,
		conversation_state, last_message_at, created_at, updated_at FROM correspondents`

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("correspondents: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithExec(db rowQuerier) *PostgresRepository {
	if db == nil {
		panic("correspondents: exec required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByAddress(ctx context.Context, address string) (*Correspondent, error) {
	c, err := scanCorrespondent(r.db.QueryRow(ctx, selectColumns+` WHERE whatsapp_phone = $1`, NormalizeAddress(address)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("correspondents: select by address: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Correspondent, error) {
	c, err := scanCorrespondent(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("correspondents: select by id: %w", err)
	}
	return c, nil
}

// GetOrCreate looks the address up and inserts it when missing. A unique
// violation means a concurrent delivery won the insert, so the row is re-read.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, address, displayName string) (*Correspondent, bool, error) {
	ctx, span := tracer.Start(ctx, "correspondents.get_or_create")
	defer span.End()

	addr := NormalizeAddress(address)
	if addr == "" {
		return nil, false, ErrInvalidAddress
	}
	span.SetAttributes(attribute.String("moto.correspondent.address", addr))

	existing, err := r.GetByAddress(ctx, addr)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		return nil, false, err
	}

	c := &Correspondent{
		ID:            uuid.NewString(),
		WhatsAppPhone: addr,
		Name:          displayName,
		State:         StateInitial,
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO correspondents (id, whatsapp_phone, name, conversation_state)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, c.ID, c.WhatsAppPhone, c.Name, string(c.State)).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.GetByAddress(ctx, addr)
			if getErr != nil {
				span.RecordError(getErr)
				return nil, false, getErr
			}
			return existing, false, nil
		}
		span.RecordError(err)
		return nil, false, fmt.Errorf("correspondents: insert: %w", err)
	}
	return c, true, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error {
	if update.Empty() {
		return nil
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE correspondents SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			budget_cents = COALESCE($5, budget_cents),
			interests = COALESCE($6, interests),
			usage_type = COALESCE($7, usage_type),
			updated_at = NOW()
		WHERE id = $1
	`, id, update.Name, update.Email, update.Phone, update.BudgetCents, update.Interests, update.UsageType)
	if err != nil {
		return fmt.Errorf("correspondents: update profile: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetState(ctx context.Context, id string, state State) error {
	if !state.Valid() {
		return ErrInvalidState
	}
	ct, err := r.db.Exec(ctx, `UPDATE correspondents SET conversation_state = $2, updated_at = NOW() WHERE id = $1`, id, string(state))
	if err != nil {
		return fmt.Errorf("correspondents: set state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	ct, err := r.db.Exec(ctx, `UPDATE correspondents SET last_message_at = $2, updated_at = NOW() WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("correspondents: touch: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Correspondent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if filter.State != "" {
		rows, err = r.db.Query(ctx, selectColumns+` WHERE conversation_state = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(filter.State), limit, filter.Offset)
	} else {
		rows, err = r.db.Query(ctx, selectColumns+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, filter.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("correspondents: list: %w", err)
	}
	defer rows.Close()

	out := make([]*Correspondent, 0)
	for rows.Next() {
		c, err := scanCorrespondent(rows)
		if err != nil {
			return nil, fmt.Errorf("correspondents: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCorrespondent(row pgx.Row) (*Correspondent, error) {
	var (
		c     Correspondent
		state string
	)
	if err := row.Scan(
		&c.ID,
		&c.WhatsAppPhone,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.BudgetCents,
		&c.Interests,
		&c.UsageType,
		&state,
		&c.LastMessageAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.State = State(state)
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
