package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Handler serves the admin appointment endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type createPayload struct {
	CorrespondentID string     `json:"correspondent_id"`
	MotorcycleID    *int64     `json:"motorcycle_id,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Date            string     `json:"date,omitempty"`
	Time            string     `json:"time,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type statusPayload struct {
	Status Status `json:"status"`
}

// ListResponse is the response for listing a correspondent's appointments.
type ListResponse struct {
	CorrespondentID string         `json:"correspondent_id"`
	Appointments    []*Appointment `json:"appointments"`
	Count           int            `json:"count"`
}

// Create handles POST /admin/appointments. The slot may be given either as an
// RFC 3339 scheduled_at or as a date and time in the business timezone.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req := CreateRequest{CorrespondentID: p.CorrespondentID, MotorcycleID: p.MotorcycleID, Notes: p.Notes}
	switch {
	case p.ScheduledAt != nil:
		req.ScheduledAt = *p.ScheduledAt
	case p.Date != "" || p.Time != "":
		t, err := ParseSlot(p.Date, p.Time, h.service.Location())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.ScheduledAt = t
	}

	a, err := h.service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSlot):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, correspondents.ErrNotFound):
			http.Error(w, "correspondent not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to create appointment", "error", err)
			http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateStatus handles PATCH /admin/appointments/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p statusPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	a, err := h.service.UpdateStatus(r.Context(), id, p.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		default:
			h.logger.Error("failed to update appointment", "error", err, "appointment_id", id)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListForCorrespondent handles GET /admin/correspondents/{id}/appointments
func (h *Handler) ListForCorrespondent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	list, err := h.service.ListByCorrespondent(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err, "correspondent_id", id)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{CorrespondentID: id, Appointments: list, Count: len(list)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
