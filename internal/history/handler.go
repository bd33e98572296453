package history

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler exposes conversation history to the admin dashboard.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a history handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("history: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// TurnsResponse wraps a page of turns.
type TurnsResponse struct {
	CorrespondentID string `json:"correspondent_id"`
	Turns           []Turn `json:"turns"`
	Count           int    `json:"count"`
}

// ListTurns handles GET /admin/correspondents/{id}/turns
func (h *Handler) ListTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}

	turns, err := h.store.List(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list turns", "error", err, "correspondent_id", id)
		http.Error(w, "failed to list turns", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TurnsResponse{
		CorrespondentID: id,
		Turns:           turns,
		Count:           len(turns),
	})
}
