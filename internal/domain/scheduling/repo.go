package scheduling

import (
	"context"
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	GetByUserID(ctx context.Context, userID string) (*Doctor, error)
	List(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error)
	UpdateAvailability(ctx context.Context, id int64, weekdays []int, timeSlots []string) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
}

// AppointmentRepository stores appointments. "Active" means any status other
// than cancelled; only active rows occupy a slot.
type AppointmentRepository interface {
	ConflictChecker
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	BookedTimes(ctx context.Context, doctorID int64, date Date) ([]TimeOfDay, error)
	CountActiveOnDate(ctx context.Context, doctorID int64, date Date) (int, error)
	CountActiveInRange(ctx context.Context, doctorID int64, from, to Date) (int, error)
	UpdateStatus(ctx context.Context, a *Appointment) error
	List(ctx context.Context, filter AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}
