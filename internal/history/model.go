package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateTurn is returned when a turn with the same channel message id already exists.
var ErrDuplicateTurn = errors.New("history: duplicate channel message id")

// Direction of a turn relative to the business.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// SenderRole identifies who authored a turn.
type SenderRole string

const (
	SenderCorrespondent SenderRole = "correspondent"
	SenderAssistant     SenderRole = "assistant"
)

// Turn is one append-only message in a correspondent's conversation.
type Turn struct {
	ID                string          `json:"id"`
	CorrespondentID   string          `json:"correspondent_id"`
	Direction         Direction       `json:"direction"`
	Sender            SenderRole      `json:"sender_role"`
	Content           string          `json:"content"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	WhatsAppMessageID string          `json:"whatsapp_message_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Store appends and reads turns.
type Store interface {
	// Append assigns ID and CreatedAt when empty and persists the turn.
	Append(ctx context.Context, turn *Turn) error
	// Recent returns up to limit of the newest turns, oldest first.
	Recent(ctx context.Context, correspondentID string, limit int) ([]Turn, error)
	// List returns up to limit turns newest first.
	List(ctx context.Context, correspondentID string, limit int) ([]Turn, error)
}

func reverse(turns []Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
