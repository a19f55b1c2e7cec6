package scheduling

import (
	"context"
	"fmt"

	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/internal/platform/events"
)

// Settings are the configured booking defaults.
type Settings struct {
	WorkdayStart         TimeOfDay
	WorkdayEnd           TimeOfDay
	AppointmentDuration  int
	MaxDailyAppointments int // 0 disables the limit
}

type Service struct {
	doctors      DoctorRepository
	patients     PatientRepository
	appointments AppointmentRepository
	tx           db.TxRunner
	alloc        *Allocator
	events       events.Sink
	settings     Settings
}

func NewService(doctors DoctorRepository, patients PatientRepository, appts AppointmentRepository,
	tx db.TxRunner, alloc *Allocator, sink events.Sink, settings Settings) *Service {
	if sink == nil {
		sink = events.Nop
	}
	return &Service{
		doctors:      doctors,
		patients:     patients,
		appointments: appts,
		tx:           tx,
		alloc:        alloc,
		events:       sink,
		settings:     settings,
	}
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) GetDoctorByUserID(ctx context.Context, userID string) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f, limit, offset)
}

// UpdateAvailability replaces the doctor's weekdays and time slots. Slots
// are stored as given; the allocator skips malformed ones.
func (s *Service) UpdateAvailability(ctx context.Context, doctorID int64, in AvailabilityInput) (*Doctor, error) {
	av, err := in.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.doctors.UpdateAvailability(ctx, doctorID, av.Weekdays, av.TimeSlots); err != nil {
		return nil, err
	}
	return s.doctors.GetByID(ctx, doctorID)
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByUserID(ctx context.Context, userID string) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

// -- Availability --

// SlotDefaults returns the configured workday window and slot duration.
func (s *Service) SlotDefaults() SlotQuery {
	return SlotQuery{
		Start:    s.settings.WorkdayStart,
		End:      s.settings.WorkdayEnd,
		Duration: s.settings.AppointmentDuration,
	}
}

// AvailableSlots lists the bookable start times for one doctor and date.
// A date outside the doctor's weekdays yields no slots.
func (s *Service) AvailableSlots(ctx context.Context, doctorID int64, q SlotQuery) (*SlotList, error) {
	if _, err := BookableStartTimes(q.Start, q.End, q.Duration, nil); err != nil {
		return nil, err
	}
	if today := s.alloc.Today(); q.Date.Before(today) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrPastDate, q.Date, today)
	}

	doc, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	out := &SlotList{DoctorID: doctorID, Date: q.Date, Duration: q.Duration, Slots: []TimeOfDay{}}
	if !doc.IsActive || !s.alloc.IsBusinessDay(doc.Availability(), q.Date) {
		return out, nil
	}

	booked, err := s.appointments.BookedTimes(ctx, doctorID, q.Date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	bookedStr := make([]string, len(booked))
	for i, t := range booked {
		bookedStr[i] = t.String()
	}

	out.Slots, err = ListBookableStartTimes(q.Start, q.End, q.Duration, bookedStr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AvailabilitySummary reports the allocator's slot estimate for [from, to]
// alongside the number of active bookings in the same range.
func (s *Service) AvailabilitySummary(ctx context.Context, doctorID int64, from, to Date) (*AvailabilitySummary, error) {
	doc, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	estimate, err := s.alloc.Estimate(doc.Availability(), from, to)
	if err != nil {
		return nil, err
	}
	booked, err := s.appointments.CountActiveInRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count booked appointments: %w", err)
	}

	return &AvailabilitySummary{
		DoctorID:           doctorID,
		From:               from,
		To:                 to,
		BusinessDays:       estimate.BusinessDays,
		Anchors:            estimate.Anchors,
		EstimatedSlots:     estimate.Slots,
		BookedAppointments: booked,
	}, nil
}

// -- Appointment --

// BookAppointment validates and inserts a new pending appointment in one
// transaction. A concurrent insert of the same slot surfaces as
// ErrSlotConflict from the unique index.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		doc, err := s.doctors.GetByID(ctx, req.DoctorID)
		if err != nil {
			return err
		}
		if !doc.IsActive {
			return fmt.Errorf("%w: doctor %d", ErrDoctorInactive, doc.ID)
		}
		if _, err := s.patients.GetByID(ctx, req.PatientID); err != nil {
			return err
		}

		intent, err := s.alloc.ValidateBookingRequest(ctx, s.appointments, req.DoctorID, req.Date, req.Time)
		if err != nil {
			return err
		}

		if limit := s.settings.MaxDailyAppointments; limit > 0 {
			n, err := s.appointments.CountActiveOnDate(ctx, intent.DoctorID, intent.Date)
			if err != nil {
				return fmt.Errorf("count daily appointments: %w", err)
			}
			if n >= limit {
				return fmt.Errorf("%w: %d of %d booked on %s", ErrDailyLimitReached, n, limit, intent.Date)
			}
		}

		a := &Appointment{
			DoctorID:    intent.DoctorID,
			PatientID:   req.PatientID,
			Date:        intent.Date,
			Time:        intent.Time,
			Status:      StatusPending,
			Reason:      req.Reason,
			OtherReason: req.OtherReason,
			Symptoms:    req.Symptoms,
		}
		if a.Reason == "" {
			a.Reason = ReasonConsult
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		s.events.Record(ctx, events.Event{
			Type:      events.BookingRejected,
			DoctorID:  req.DoctorID,
			PatientID: req.PatientID,
			Date:      req.Date.String(),
			Time:      req.Time.String(),
			Error:     err.Error(),
		})
		return nil, err
	}

	s.events.Record(ctx, appointmentEvent(events.AppointmentBooked, appt, ""))
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, f, limit, offset)
}

// UpdateStatus moves an appointment to requested. endTime, when given, must
// fall after the start time and replaces the stored end time.
func (s *Service) UpdateStatus(ctx context.Context, id int64, actor string, requested Status, endTime *TimeOfDay) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateStatusTransition(a.Status, requested, a.Time, endTime); err != nil {
			return err
		}
		a.Status = requested
		if endTime != nil {
			a.EndTime = endTime
		}
		if requested == StatusCancelled {
			a.CancelledBy = actor
		}
		if err := s.appointments.UpdateStatus(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	typ := events.AppointmentUpdated
	if requested == StatusCancelled {
		typ = events.AppointmentCancelled
	}
	s.events.Record(ctx, appointmentEvent(typ, appt, actor))
	return appt, nil
}

// CancelAppointment cancels with a recorded reason and actor. Cancelling
// releases the slot for new bookings.
func (s *Service) CancelAppointment(ctx context.Context, id int64, actor string, in CancelInput) (*Appointment, error) {
	reason, err := in.Validate()
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateStatusTransition(a.Status, StatusCancelled, a.Time, nil); err != nil {
			return err
		}
		a.Status = StatusCancelled
		a.CancellationReason = reason
		a.CancelledBy = actor
		if err := s.appointments.UpdateStatus(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	e := appointmentEvent(events.AppointmentCancelled, appt, actor)
	e.Reason = reason
	s.events.Record(ctx, e)
	return appt, nil
}

func appointmentEvent(typ events.Type, a *Appointment, actor string) events.Event {
	return events.Event{
		Type:          typ,
		AppointmentID: a.ID,
		Reference:     a.Reference.String(),
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		Actor:         actor,
	}
}
