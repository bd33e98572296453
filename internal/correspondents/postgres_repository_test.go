package correspondents

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var correspondentColumns = []string{
	"id", "whatsapp_phone", "name", "email", "phone", "budget_cents", "interests", "usage_type",
	"conversation_state", "last_message_at", "created_at", "updated_at",
}

func correspondentRow(id, phone, state string) *pgxmock.Rows {
	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(correspondentColumns).
		AddRow(id, phone, "", "", "", (*int64)(nil), "", "", state, (*time.Time)(nil), now, now)
}

func TestPostgresRepository_GetOrCreateExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	mock.ExpectQuery("FROM correspondents WHERE whatsapp_phone = \\$1").
		WithArgs("5551234567").
		WillReturnRows(correspondentRow("c-1", "5551234567", "recommending"))

	c, created, err := repo.GetOrCreate(context.Background(), "+555-123-4567", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, StateRecommending, c.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetOrCreateInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM correspondents WHERE whatsapp_phone = \\$1").
		WithArgs("5551234567").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO correspondents").
		WithArgs(pgxmock.AnyArg(), "5551234567", "Ana", "initial").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	c, created, err := repo.GetOrCreate(context.Background(), "5551234567", "Ana")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StateInitial, c.State)
	assert.Equal(t, "Ana", c.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetOrCreateRecoversFromDuplicateKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	mock.ExpectQuery("FROM correspondents WHERE whatsapp_phone = \\$1").
		WithArgs("5551234567").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO correspondents").
		WithArgs(pgxmock.AnyArg(), "5551234567", "", "initial").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectQuery("FROM correspondents WHERE whatsapp_phone = \\$1").
		WithArgs("5551234567").
		WillReturnRows(correspondentRow("c-winner", "5551234567", "initial"))

	c, created, err := repo.GetOrCreate(context.Background(), "5551234567", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c-winner", c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SetStateNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	mock.ExpectExec("UPDATE correspondents SET conversation_state").
		WithArgs("missing", "scheduling").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetState(context.Background(), "missing", StateScheduling)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateProfileSkipsEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock)
	require.NoError(t, repo.UpdateProfile(context.Background(), "c-1", ProfileUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
