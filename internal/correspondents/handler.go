package correspondents

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Handler serves the admin correspondent endpoints.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new correspondents handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("correspondents: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListResponse is the response for listing correspondents.
type ListResponse struct {
	Correspondents []*Correspondent `json:"correspondents"`
	Count          int              `json:"count"`
	Offset         int              `json:"offset"`
	Limit          int              `json:"limit"`
}

// List handles GET /admin/correspondents
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 200 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if state := State(r.URL.Query().Get("state")); state != "" {
		if !state.Valid() {
			http.Error(w, ErrInvalidState.Error(), http.StatusBadRequest)
			return
		}
		filter.State = state
	}

	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list correspondents", "error", err)
		http.Error(w, "failed to list correspondents", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Correspondents: list,
		Count:          len(list),
		Offset:         filter.Offset,
		Limit:          filter.Limit,
	})
}

// Get handles GET /admin/correspondents/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "correspondent not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load correspondent", "error", err, "correspondent_id", id)
		http.Error(w, "failed to load correspondent", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
