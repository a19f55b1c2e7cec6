package prescription

import (
	"context"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id int64) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Prescription, int, error)
}

// AppointmentLookup is the part of the appointment store prescriptions need.
// scheduling.AppointmentRepository satisfies it.
type AppointmentLookup interface {
	GetByID(ctx context.Context, id int64) (*scheduling.Appointment, error)
}
