package prescription

import (
	"context"
	"fmt"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/internal/platform/events"
)

type Service struct {
	prescriptions Repository
	appointments  AppointmentLookup
	tx            db.TxRunner
	events        events.Sink
}

func NewService(prescriptions Repository, appts AppointmentLookup, tx db.TxRunner, sink events.Sink) *Service {
	if sink == nil {
		sink = events.Nop
	}
	return &Service{prescriptions: prescriptions, appointments: appts, tx: tx, events: sink}
}

// prescribable reports whether a prescription may be written for an
// appointment in status s.
func prescribable(s scheduling.Status) bool {
	return s == scheduling.StatusConfirmed || s == scheduling.StatusCompleted
}

func checkFollowUp(p *Prescription, a *scheduling.Appointment) error {
	if p.FollowUpDate != nil && !p.FollowUpDate.After(a.Date) {
		var errs scheduling.ValidationErrors
		errs.Add("follow_up_date", "must be after the appointment date %s", a.Date)
		return errs
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*scheduling.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// Create attaches p to the appointment. The appointment must be confirmed
// or completed.
func (s *Service) Create(ctx context.Context, appointmentID int64, actor string, p *Prescription) (*Prescription, error) {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !prescribable(a.Status) {
			return fmt.Errorf("%w: appointment %d is %s", ErrNotPrescribable, a.ID, a.Status)
		}
		if err := checkFollowUp(p, a); err != nil {
			return err
		}
		p.AppointmentID = a.ID
		p.DoctorID = a.DoctorID
		p.PatientID = a.PatientID
		p.CreatedBy = actor
		return s.prescriptions.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, prescriptionEvent(events.PrescriptionIssued, p, actor))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.List(ctx, f, limit, offset)
}

// Update replaces the content of prescription id with that of changes. The
// appointment link and author are kept.
func (s *Service) Update(ctx context.Context, id int64, actor string, changes *Prescription) (*Prescription, error) {
	var updated *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		a, err := s.appointments.GetByID(ctx, cur.AppointmentID)
		if err != nil {
			return err
		}
		if err := checkFollowUp(changes, a); err != nil {
			return err
		}
		cur.Diagnosis = changes.Diagnosis
		cur.Medicines = changes.Medicines
		cur.Advice = changes.Advice
		cur.FollowUpDate = changes.FollowUpDate
		cur.IsDigitalSignature = changes.IsDigitalSignature
		if err := s.prescriptions.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, prescriptionEvent(events.PrescriptionUpdated, updated, actor))
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64, actor string) error {
	var deleted *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.prescriptions.Delete(ctx, id); err != nil {
			return err
		}
		deleted = cur
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Record(ctx, prescriptionEvent(events.PrescriptionDeleted, deleted, actor))
	return nil
}

func prescriptionEvent(typ events.Type, p *Prescription, actor string) events.Event {
	return events.Event{
		Type:           typ,
		AppointmentID:  p.AppointmentID,
		PrescriptionID: p.ID,
		DoctorID:       p.DoctorID,
		PatientID:      p.PatientID,
		Actor:          actor,
	}
}
