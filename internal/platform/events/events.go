package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Type names a booking or prescription outcome.
type Type string

const (
	AppointmentBooked    Type = "appointment_booked"
	BookingRejected      Type = "booking_rejected"
	AppointmentUpdated   Type = "appointment_updated"
	AppointmentCancelled Type = "appointment_cancelled"
	PrescriptionIssued   Type = "prescription_issued"
	PrescriptionUpdated  Type = "prescription_updated"
	PrescriptionDeleted  Type = "prescription_deleted"
)

// Event describes one booking outcome. Date and Time are pre-formatted
// ("2006-01-02", "15:04:05") so sinks need no scheduling types.
type Event struct {
	Type           Type
	AppointmentID  int64
	PrescriptionID int64
	Reference      string
	DoctorID       int64
	PatientID      int64
	Date           string
	Time           string
	Status         string
	Actor          string
	Reason         string
	Error          string
	Timestamp      time.Time
}

// Sink receives booking outcomes. The service calls it explicitly after a
// store write or a rejection; there are no implicit hooks.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Record(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

// LogSink writes events as structured zerolog lines. Rejections log at warn.
func LogSink(logger zerolog.Logger) Sink {
	return SinkFunc(func(ctx context.Context, e Event) {
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		ev := logger.Info()
		if e.Type == BookingRejected {
			ev = logger.Warn()
		}
		ev = ev.Str("event", string(e.Type)).
			Int64("doctor_id", e.DoctorID).
			Int64("patient_id", e.PatientID).
			Time("timestamp", e.Timestamp)
		if e.AppointmentID != 0 {
			ev = ev.Int64("appointment_id", e.AppointmentID)
		}
		if e.PrescriptionID != 0 {
			ev = ev.Int64("prescription_id", e.PrescriptionID)
		}
		if e.Reference != "" {
			ev = ev.Str("reference", e.Reference)
		}
		if e.Date != "" {
			ev = ev.Str("date", e.Date).Str("start_time", e.Time)
		}
		if e.Status != "" {
			ev = ev.Str("status", e.Status)
		}
		if e.Actor != "" {
			ev = ev.Str("actor", e.Actor)
		}
		if e.Reason != "" {
			ev = ev.Str("reason", e.Reason)
		}
		if e.Error != "" {
			ev = ev.Str("error", e.Error)
		}
		ev.Msg("booking event")
	})
}

// Multi fans an event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Event) {
		for _, s := range sinks {
			s.Record(ctx, e)
		}
	})
}
