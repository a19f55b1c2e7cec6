package scheduling

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// slotsPerAnchor is the fixed number of fifteen-minute units assumed per
// hour-long anchor when estimating capacity.
const slotsPerAnchor = 4

// maxSlotMinutes bounds a slot duration to one day.
const maxSlotMinutes = 24 * 60

// DefaultAnchor is used when a doctor has no parseable time slots.
var DefaultAnchor = NewTimeOfDay(9, 0, 0)

// DefaultWeekdays is used when a doctor has no configured weekdays.
var DefaultWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

// ConflictChecker reports whether a non-cancelled appointment already holds
// a doctor's start time on a date.
type ConflictChecker interface {
	HasActiveAppointment(ctx context.Context, doctorID int64, date Date, t TimeOfDay) (bool, error)
}

// BookingIntent is returned by a successful ValidateBookingRequest and
// authorizes the caller to insert the appointment.
type BookingIntent struct {
	DoctorID    int64
	Date        Date
	Time        TimeOfDay
	ValidatedAt time.Time
}

// Allocator computes availability and validates bookings. It holds no
// mutable state and is safe for concurrent use.
type Allocator struct {
	clock  Clock
	logger zerolog.Logger
}

func NewAllocator(clock Clock, logger zerolog.Logger) *Allocator {
	return &Allocator{clock: clock, logger: logger}
}

// Today returns the current calendar date according to the clock.
func (a *Allocator) Today() Date {
	return DateOf(a.clock.Now())
}

// ResolveWeekdays returns the doctor's business weekdays, falling back to
// Monday through Friday. Values outside 0..6 are ignored.
func (a *Allocator) ResolveWeekdays(av DoctorAvailability) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	for _, d := range av.Weekdays {
		if d < 0 || d > 6 {
			a.logger.Warn().Int64("doctor_id", av.DoctorID).Int("weekday", d).
				Msg("ignoring out-of-range weekday")
			continue
		}
		set[time.Weekday(d)] = true
	}
	if len(set) == 0 {
		for _, d := range DefaultWeekdays {
			set[d] = true
		}
	}
	return set
}

// ResolveAnchors parses the doctor's time slots in order. Malformed entries
// are logged and dropped; if none remain the result is [DefaultAnchor].
func (a *Allocator) ResolveAnchors(av DoctorAvailability) []TimeOfDay {
	anchors := make([]TimeOfDay, 0, len(av.TimeSlots))
	for _, raw := range av.TimeSlots {
		t, err := ParseTimeOfDay(raw)
		if err != nil {
			a.logger.Warn().Int64("doctor_id", av.DoctorID).Str("time_slot", raw).
				Msg("skipping malformed availability time slot")
			continue
		}
		anchors = append(anchors, t)
	}
	if len(anchors) == 0 {
		return []TimeOfDay{DefaultAnchor}
	}
	return anchors
}

// BusinessDays counts the dates in [start, end] whose weekday is in weekdays.
func BusinessDays(weekdays map[time.Weekday]bool, start, end Date) int {
	n := 0
	for d := start; !d.After(end); d = d.AddDays(1) {
		if weekdays[d.Weekday()] {
			n++
		}
	}
	return n
}

// SlotEstimate is the breakdown behind AvailableSlotCount.
type SlotEstimate struct {
	BusinessDays int
	Anchors      int
	Slots        int
}

// Estimate computes capacity over the inclusive range [start, end] as
// slotsPerAnchor × business days × valid anchors. Existing bookings are not
// subtracted.
func (a *Allocator) Estimate(av DoctorAvailability, start, end Date) (SlotEstimate, error) {
	if start.After(end) {
		return SlotEstimate{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}
	e := SlotEstimate{
		BusinessDays: BusinessDays(a.ResolveWeekdays(av), start, end),
		Anchors:      len(a.ResolveAnchors(av)),
	}
	e.Slots = slotsPerAnchor * e.BusinessDays * e.Anchors
	return e, nil
}

// AvailableSlotCount returns the slot estimate for [start, end].
func (a *Allocator) AvailableSlotCount(av DoctorAvailability, start, end Date) (int, error) {
	e, err := a.Estimate(av, start, end)
	if err != nil {
		return 0, err
	}
	return e.Slots, nil
}

// IsBusinessDay reports whether the doctor works on date.
func (a *Allocator) IsBusinessDay(av DoctorAvailability, date Date) bool {
	return a.ResolveWeekdays(av)[date.Weekday()]
}

// BookableStartTimes yields start times from start, stepping by
// durationMinutes, strictly before end, skipping any whose "HH:MM:SS" form is
// in booked. The sequence is lazy and may be ranged over repeatedly. An empty
// window yields nothing. Durations longer than a day are rejected.
func BookableStartTimes(start, end TimeOfDay, durationMinutes int, booked []string) (iter.Seq[TimeOfDay], error) {
	if durationMinutes <= 0 || durationMinutes > maxSlotMinutes {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, durationMinutes)
	}
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	step := time.Duration(durationMinutes) * time.Minute

	return func(yield func(TimeOfDay) bool) {
		for t := start; t.Before(end); {
			if _, ok := taken[t.String()]; !ok {
				if !yield(t) {
					return
				}
			}
			next := t.Add(step)
			if !t.Before(next) {
				return
			}
			t = next
		}
	}, nil
}

// ListBookableStartTimes collects BookableStartTimes into a slice.
func ListBookableStartTimes(start, end TimeOfDay, durationMinutes int, booked []string) ([]TimeOfDay, error) {
	seq, err := BookableStartTimes(start, end, durationMinutes, booked)
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []TimeOfDay{}
	}
	return slots, nil
}

// ValidateBookingRequest checks, in order, that date is not before today and
// that no active appointment holds (doctorID, date, t). The caller must run
// this and the insert in one transaction; the storage unique index remains
// the final guard.
func (a *Allocator) ValidateBookingRequest(ctx context.Context, checker ConflictChecker, doctorID int64, date Date, t TimeOfDay) (*BookingIntent, error) {
	now := a.clock.Now()
	if today := DateOf(now); date.Before(today) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrPastDate, date, today)
	}

	taken, err := checker.HasActiveAppointment(ctx, doctorID, date, t)
	if err != nil {
		return nil, fmt.Errorf("check slot conflict: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: doctor %d at %s %s", ErrSlotConflict, doctorID, date, t)
	}

	return &BookingIntent{DoctorID: doctorID, Date: date, Time: t, ValidatedAt: now}, nil
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// ValidateStatusTransition checks current → requested against the
// appointment state machine and, when endTime is set, that it falls after
// startTime.
func ValidateStatusTransition(current, requested Status, startTime TimeOfDay, endTime *TimeOfDay) error {
	if !slices.Contains(allowedTransitions[current], requested) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, requested)
	}
	if endTime != nil && !startTime.Before(*endTime) {
		return fmt.Errorf("%w: %s is not after %s", ErrInvalidTimeRange, *endTime, startTime)
	}
	return nil
}
