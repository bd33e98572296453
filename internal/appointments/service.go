package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/moto-assistant/internal/catalog"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

var tracer = otel.Tracer("moto.internal.appointments")

// CreateRequest describes a new appointment.
type CreateRequest struct {
	CorrespondentID string    `json:"correspondent_id"`
	MotorcycleID    *int64    `json:"motorcycle_id,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Notes           string    `json:"notes,omitempty"`
}

// Service applies the scheduling rules on top of the repository.
type Service struct {
	repo           Repository
	correspondents correspondents.Repository
	catalog        catalog.Reader
	email          notify.EmailSender
	sink           notify.Sink
	loc            *time.Location
	logger         *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithCatalog(r catalog.Reader) Option { return func(s *Service) { s.catalog = r } }
func WithEmailSender(e notify.EmailSender) Option { return func(s *Service) { s.email = e } }
func WithSink(n notify.Sink) Option { return func(s *Service) { s.sink = n } }
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func NewService(repo Repository, people correspondents.Repository, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if people == nil {
		panic("appointments: correspondents repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:           repo,
		correspondents: people,
		sink:           notify.NopSink{},
		loc:            time.UTC,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	return s
}

// Location is the business timezone slots are evaluated in.
func (s *Service) Location() *time.Location { return s.loc }

// Create validates the slot in the business timezone and stores a pending appointment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()

	if strings.TrimSpace(req.CorrespondentID) == "" {
		return nil, fmt.Errorf("%w: correspondent_id required", ErrInvalidInput)
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at required", ErrInvalidInput)
	}
	local := req.ScheduledAt.In(s.loc)
	if !IsValidSlot(local) {
		return nil, ErrInvalidSlot
	}
	if _, err := s.correspondents.GetByID(ctx, req.CorrespondentID); err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:              uuid.NewString(),
		CorrespondentID: req.CorrespondentID,
		MotorcycleID:    req.MotorcycleID,
		ScheduledAt:     local,
		Status:          StatusPending,
		Notes:           req.Notes,
	}
	span.SetAttributes(attribute.String("moto.appointment.id", a.ID))
	if err := s.repo.Create(ctx, a); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment created", "appointment_id", a.ID, "correspondent_id", a.CorrespondentID, "scheduled_at", local)
	s.sink.Publish(ctx, notify.Notification{
		Type:            notify.TypeAppointmentCreated,
		CorrespondentID: a.CorrespondentID,
		Data:            map[string]any{"appointment_id": a.ID, "scheduled_at": local.Format(time.RFC3339)},
	})
	return a, nil
}

// UpdateStatus changes an appointment's status. Confirming an appointment
// completes the conversation and emails the customer when an address is known.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("moto.appointment.id", id), attribute.String("moto.appointment.status", string(status)))

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	a, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	a.ScheduledAt = a.ScheduledAt.In(s.loc)

	s.sink.Publish(ctx, notify.Notification{
		Type:            notify.TypeAppointmentUpdated,
		CorrespondentID: a.CorrespondentID,
		Data:            map[string]any{"appointment_id": a.ID, "status": string(status)},
	})

	if status == StatusConfirmed {
		s.onConfirmed(ctx, a)
	}
	return a, nil
}

func (s *Service) onConfirmed(ctx context.Context, a *Appointment) {
	if err := s.correspondents.SetState(ctx, a.CorrespondentID, correspondents.StateCompleted); err != nil {
		s.logger.Warn("failed to complete conversation after confirmation", "error", err, "correspondent_id", a.CorrespondentID)
	}
	if s.email == nil {
		return
	}
	c, err := s.correspondents.GetByID(ctx, a.CorrespondentID)
	if err != nil {
		s.logger.Warn("failed to load correspondent for confirmation email", "error", err, "correspondent_id", a.CorrespondentID)
		return
	}
	if strings.TrimSpace(c.Email) == "" {
		return
	}

	details := notify.AppointmentDetails{
		CustomerName:  c.Name,
		CustomerEmail: c.Email,
		ScheduledAt:   a.ScheduledAt,
		Notes:         a.Notes,
	}
	if a.MotorcycleID != nil && s.catalog != nil {
		item, err := s.catalog.GetByID(ctx, *a.MotorcycleID)
		switch {
		case err == nil:
			details.ItemName = item.Name + " " + item.Model
		case !errors.Is(err, catalog.ErrNotFound):
			s.logger.Warn("failed to load motorcycle for confirmation email", "error", err)
		}
	}
	if err := s.email.Send(ctx, notify.AppointmentConfirmationEmail(details)); err != nil {
		s.logger.Warn("failed to send confirmation email", "error", err, "appointment_id", a.ID)
	}
}

// ListByCorrespondent returns appointments ordered by time, in the business timezone.
func (s *Service) ListByCorrespondent(ctx context.Context, correspondentID string) ([]*Appointment, error) {
	list, err := s.repo.ListByCorrespondent(ctx, correspondentID)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		a.ScheduledAt = a.ScheduledAt.In(s.loc)
	}
	return list, nil
}
