package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/history"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const maxExportTurns = 5000

// ErrDisabled is returned when no archive bucket is configured.
var ErrDisabled = errors.New("archive: export disabled")

// Exporter builds transcripts from the stores and writes them to S3.
type Exporter struct {
	store          *Store
	correspondents correspondents.Repository
	history        history.Store
	scrub          bool
	now            func() time.Time
	logger         *logging.Logger
}

// NewExporter wires an exporter. When scrub is true emails and phone numbers
// are masked in turn content.
func NewExporter(store *Store, repo correspondents.Repository, turns history.Store, scrub bool, logger *logging.Logger) *Exporter {
	if repo == nil || turns == nil {
		panic("archive: correspondent repository and history store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Exporter{
		store:          store,
		correspondents: repo,
		history:        turns,
		scrub:          scrub,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger,
	}
}

// ExportResult identifies a written transcript.
type ExportResult struct {
	CorrespondentID string    `json:"correspondent_id"`
	S3Key           string    `json:"s3_key"`
	TurnCount       int       `json:"turn_count"`
	ArchivedAt      time.Time `json:"archived_at"`
}

// Export writes the full transcript for one correspondent.
func (e *Exporter) Export(ctx context.Context, correspondentID string) (*ExportResult, error) {
	if !e.store.Enabled() {
		return nil, ErrDisabled
	}
	c, err := e.correspondents.GetByID(ctx, correspondentID)
	if err != nil {
		return nil, err
	}
	transcript, err := e.Build(ctx, c)
	if err != nil {
		return nil, err
	}
	key, err := e.store.PutTranscript(ctx, transcript)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		CorrespondentID: c.ID,
		S3Key:           key,
		TurnCount:       transcript.TurnCount,
		ArchivedAt:      transcript.ArchivedAt,
	}, nil
}

// Build assembles the transcript document without writing it.
func (e *Exporter) Build(ctx context.Context, c *correspondents.Correspondent) (*Transcript, error) {
	turns, err := e.history.Recent(ctx, c.ID, maxExportTurns)
	if err != nil {
		return nil, fmt.Errorf("archive: load turns: %w", err)
	}
	if len(turns) == maxExportTurns {
		e.logger.Warn("transcript truncated", "correspondent_id", c.ID, "limit", maxExportTurns)
	}

	out := make([]TranscriptTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, TranscriptTurn{
			Direction: string(t.Direction),
			Sender:    string(t.Sender),
			Content:   t.Content,
			Metadata:  t.Metadata,
			CreatedAt: t.CreatedAt,
		})
	}
	if e.scrub {
		ScrubTurns(out)
	}

	return &Transcript{
		Version:         TranscriptVersion,
		CorrespondentID: c.ID,
		AddressHash:     HashAddress(c.WhatsAppPhone),
		State:           string(c.State),
		Profile: Profile{
			Name:        c.Name,
			BudgetCents: c.BudgetCents,
			Interests:   c.Interests,
			UsageType:   c.UsageType,
		},
		ArchivedAt: e.now(),
		TurnCount:  len(out),
		Turns:      out,
	}, nil
}
