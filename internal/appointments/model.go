package appointments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSlot is returned when a requested time falls outside business hours.
	ErrInvalidSlot   = errors.New("Appointment time must be Monday-Friday, 11 AM - 6 PM")
	ErrNotFound      = errors.New("appointments: not found")
	ErrInvalidStatus = errors.New("appointments: invalid status")
	ErrInvalidInput  = errors.New("appointments: invalid request")
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment is a scheduled visit to the showroom.
type Appointment struct {
	ID              string    `json:"id"`
	CorrespondentID string    `json:"correspondent_id"`
	MotorcycleID    *int64    `json:"motorcycle_id,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Appointment, error)
	ListByCorrespondent(ctx context.Context, correspondentID string) ([]*Appointment, error)
}
