package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SQLStore persists turns to PostgreSQL through database/sql.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store backed by db.
func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("history: sql db required")
	}
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, turn *Turn) error {
	if turn == nil {
		return errors.New("history: turn cannot be nil")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(turn.Metadata) > 0 {
		metadata = []byte(turn.Metadata)
	}
	var messageID any
	if turn.WhatsAppMessageID != "" {
		messageID = turn.WhatsAppMessageID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, correspondent_id, direction, sender_role, content, metadata, whatsapp_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, turn.ID, turn.CorrespondentID, string(turn.Direction), string(turn.Sender), turn.Content, metadata, messageID, turn.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateTurn
		}
		return fmt.Errorf("history: append turn: %w", err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, correspondentID string, limit int) ([]Turn, error) {
	turns, err := s.List(ctx, correspondentID, limit)
	if err != nil {
		return nil, err
	}
	reverse(turns)
	return turns, nil
}

func (s *SQLStore) List(ctx context.Context, correspondentID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return []Turn{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correspondent_id, direction, sender_role, content, metadata, whatsapp_message_id, created_at
		FROM turns
		WHERE correspondent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, correspondentID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, limit)
	for rows.Next() {
		var (
			t         Turn
			direction string
			sender    string
			metadata  []byte
			messageID sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.CorrespondentID, &direction, &sender, &t.Content, &metadata, &messageID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		t.Direction = Direction(direction)
		t.Sender = SenderRole(sender)
		if len(metadata) > 0 {
			t.Metadata = metadata
		}
		t.WhatsAppMessageID = messageID.String
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate turns: %w", err)
	}
	return turns, nil
}
