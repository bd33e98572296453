package archive

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Handler serves transcript exports for the admin API.
type Handler struct {
	exporter *Exporter
	logger   *logging.Logger
}

func NewHandler(exporter *Exporter, logger *logging.Logger) *Handler {
	if exporter == nil {
		panic("archive: exporter required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{exporter: exporter, logger: logger}
}

// Export handles POST /admin/correspondents/{id}/archive.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing correspondent id", http.StatusBadRequest)
		return
	}

	result, err := h.exporter.Export(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, result)
	case errors.Is(err, ErrDisabled):
		writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
	case errors.Is(err, correspondents.ErrNotFound):
		http.Error(w, "correspondent not found", http.StatusNotFound)
	default:
		h.logger.Error("transcript export failed", "error", err, "correspondent_id", id)
		http.Error(w, "export failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
