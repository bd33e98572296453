package archive

import (
	"encoding/json"
	"time"
)

// TranscriptVersion is bumped when the exported JSON shape changes.
const TranscriptVersion = "1.0"

// Transcript is the JSON document written to S3 for one correspondent.
type Transcript struct {
	Version         string           `json:"version"`
	CorrespondentID string           `json:"correspondent_id"`
	AddressHash     string           `json:"address_hash"`
	State           string           `json:"conversation_state"`
	Profile         Profile          `json:"profile"`
	ArchivedAt      time.Time        `json:"archived_at"`
	TurnCount       int              `json:"turn_count"`
	Turns           []TranscriptTurn `json:"turns"`
}

// Profile holds the sales profile known at export time.
type Profile struct {
	Name        string `json:"name,omitempty"`
	BudgetCents *int64 `json:"budget_cents,omitempty"`
	Interests   string `json:"interests,omitempty"`
	UsageType   string `json:"usage_type,omitempty"`
}

// TranscriptTurn is a single history entry, oldest first.
type TranscriptTurn struct {
	Direction string          `json:"direction"`
	Sender    string          `json:"sender_role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	CorrespondentID string `json:"correspondent_id"`
	S3Key           string `json:"s3_key"`
	State           string `json:"conversation_state"`
	ArchivedAt      string `json:"archived_at"`
	TurnCount       int    `json:"turn_count"`
}
