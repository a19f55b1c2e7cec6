package scheduling

import (
	"slices"
	"strconv"
	"strings"
)

const minCancellationReason = 10

// BookingInput is the body of POST /appointments.
type BookingInput struct {
	DoctorID    int64  `json:"doctor_id"`
	PatientID   int64  `json:"patient_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
	OtherReason string `json:"other_reason"`
	Symptoms    string `json:"symptoms"`
}

// BookingRequest is a validated BookingInput.
type BookingRequest struct {
	DoctorID    int64
	PatientID   int64
	Date        Date
	Time        TimeOfDay
	Reason      Reason
	OtherReason string
	Symptoms    string
}

func (in BookingInput) Validate() (BookingRequest, error) {
	var errs ValidationErrors
	req := BookingRequest{
		DoctorID:    in.DoctorID,
		PatientID:   in.PatientID,
		Reason:      ReasonConsult,
		OtherReason: strings.TrimSpace(in.OtherReason),
		Symptoms:    strings.TrimSpace(in.Symptoms),
	}

	if in.DoctorID <= 0 {
		errs.Add("doctor_id", "is required")
	}
	if in.PatientID <= 0 {
		errs.Add("patient_id", "is required")
	}
	if in.Date == "" {
		errs.Add("date", "is required")
	} else if d, err := ParseDate(in.Date); err != nil {
		errs.Add("date", "must be YYYY-MM-DD")
	} else {
		req.Date = d
	}
	if in.Time == "" {
		errs.Add("time", "is required")
	} else if t, err := ParseClockTime(in.Time); err != nil {
		errs.Add("time", "must be HH:MM or HH:MM:SS")
	} else {
		req.Time = t
	}
	if in.Reason != "" {
		r := Reason(strings.ToUpper(in.Reason))
		if !r.Valid() {
			errs.Add("reason", "must be one of CHECKUP, CONSULT, FEVER, INJURY")
		} else {
			req.Reason = r
		}
	}
	if len(req.OtherReason) > 100 {
		errs.Add("other_reason", "must be at most 100 characters")
	}

	return req, errs.Err()
}

// SlotQueryInput holds the query of GET /doctors/:id/slots. Empty window and
// duration fields fall back to the configured defaults.
type SlotQueryInput struct {
	Date     string
	Start    string
	End      string
	Duration string
}

// SlotQuery is a validated SlotQueryInput.
type SlotQuery struct {
	Date     Date
	Start    TimeOfDay
	End      TimeOfDay
	Duration int
}

// Validate resolves the query against defaults. Duration sign is left to the
// allocator, which owns that rule.
func (in SlotQueryInput) Validate(defaults SlotQuery) (SlotQuery, error) {
	var errs ValidationErrors
	q := defaults

	if in.Date == "" {
		errs.Add("date", "is required")
	} else if d, err := ParseDate(in.Date); err != nil {
		errs.Add("date", "must be YYYY-MM-DD")
	} else {
		q.Date = d
	}
	if in.Start != "" {
		if t, err := ParseClockTime(in.Start); err != nil {
			errs.Add("start", "must be HH:MM or HH:MM:SS")
		} else {
			q.Start = t
		}
	}
	if in.End != "" {
		if t, err := ParseClockTime(in.End); err != nil {
			errs.Add("end", "must be HH:MM or HH:MM:SS")
		} else {
			q.End = t
		}
	}
	if in.Duration != "" {
		if n, err := strconv.Atoi(in.Duration); err != nil {
			errs.Add("duration", "must be a whole number of minutes")
		} else {
			q.Duration = n
		}
	}

	return q, errs.Err()
}

// maxRangeDays bounds the span of a from/to query.
const maxRangeDays = 366

// ParseDateRange validates a from/to pair spanning at most maxRangeDays.
// Ordering is left to the allocator.
func ParseDateRange(from, to string) (Date, Date, error) {
	var errs ValidationErrors
	var start, end Date
	var err error

	if from == "" {
		errs.Add("from", "is required")
	} else if start, err = ParseDate(from); err != nil {
		errs.Add("from", "must be YYYY-MM-DD")
	}
	if to == "" {
		errs.Add("to", "is required")
	} else if end, err = ParseDate(to); err != nil {
		errs.Add("to", "must be YYYY-MM-DD")
	}
	if len(errs) == 0 && start.AddDays(maxRangeDays).Before(end) {
		errs.Add("to", "must be within %d days of from", maxRangeDays)
	}
	return start, end, errs.Err()
}

// AvailabilityInput is the body of PUT /doctors/:id/availability.
type AvailabilityInput struct {
	Weekdays  []int    `json:"available_weekdays"`
	TimeSlots []string `json:"available_time_slots"`
}

// Validate checks weekdays and normalizes them to a sorted set. Time slots
// are kept verbatim; unparseable ones are skipped when slots are computed.
func (in AvailabilityInput) Validate() (AvailabilityInput, error) {
	var errs ValidationErrors
	out := AvailabilityInput{Weekdays: []int{}, TimeSlots: []string{}}

	for _, d := range in.Weekdays {
		if d < 0 || d > 6 {
			errs.Add("available_weekdays", "%d is not a weekday (0 = Sunday ... 6 = Saturday)", d)
			continue
		}
		if !slices.Contains(out.Weekdays, d) {
			out.Weekdays = append(out.Weekdays, d)
		}
	}
	slices.Sort(out.Weekdays)

	for _, s := range in.TimeSlots {
		if s = strings.TrimSpace(s); s != "" {
			out.TimeSlots = append(out.TimeSlots, s)
		}
	}

	return out, errs.Err()
}

// StatusInput is the body of PATCH /appointments/:id/status.
type StatusInput struct {
	Status  string `json:"status"`
	EndTime string `json:"end_time"`
}

func (in StatusInput) Validate() (Status, *TimeOfDay, error) {
	var errs ValidationErrors
	status := Status(strings.ToLower(strings.TrimSpace(in.Status)))
	var end *TimeOfDay

	if status == "" {
		errs.Add("status", "is required")
	} else if !status.Valid() {
		errs.Add("status", "must be one of pending, confirmed, cancelled, completed")
	}
	if in.EndTime != "" {
		if t, err := ParseClockTime(in.EndTime); err != nil {
			errs.Add("end_time", "must be HH:MM or HH:MM:SS")
		} else {
			end = &t
		}
	}

	return status, end, errs.Err()
}

// CancelInput is the body of POST /appointments/:id/cancel.
type CancelInput struct {
	Reason string `json:"reason"`
}

func (in CancelInput) Validate() (string, error) {
	var errs ValidationErrors
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		errs.Add("reason", "is required")
	} else if len([]rune(reason)) < minCancellationReason {
		errs.Add("reason", "please provide a detailed reason (at least %d characters)", minCancellationReason)
	}
	return reason, errs.Err()
}

// DoctorInput is the body of POST /doctors.
type DoctorInput struct {
	UserID             string   `json:"user_id"`
	FullName           string   `json:"full_name"`
	Specialization     string   `json:"specialization"`
	Hospital           string   `json:"hospital"`
	City               string   `json:"city"`
	LicenseNumber      string   `json:"license_number"`
	ConsultationFee    *int     `json:"consultation_fee"`
	AvailableWeekdays  []int    `json:"available_weekdays"`
	AvailableTimeSlots []string `json:"available_time_slots"`
}

func (in DoctorInput) Validate() (*Doctor, error) {
	var errs ValidationErrors
	d := &Doctor{
		UserID:          strings.TrimSpace(in.UserID),
		FullName:        strings.TrimSpace(in.FullName),
		Specialization:  strings.TrimSpace(in.Specialization),
		Hospital:        strings.TrimSpace(in.Hospital),
		City:            strings.TrimSpace(in.City),
		ConsultationFee: 2000,
		IsActive:        true,
	}
	if d.UserID == "" {
		errs.Add("user_id", "is required")
	}
	if d.FullName == "" {
		errs.Add("full_name", "is required")
	}
	if ln := strings.TrimSpace(in.LicenseNumber); ln != "" {
		d.LicenseNumber = &ln
	}
	if in.ConsultationFee != nil {
		if *in.ConsultationFee < 0 {
			errs.Add("consultation_fee", "must not be negative")
		}
		d.ConsultationFee = *in.ConsultationFee
	}

	av, err := AvailabilityInput{Weekdays: in.AvailableWeekdays, TimeSlots: in.AvailableTimeSlots}.Validate()
	if err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	d.AvailableWeekdays = av.Weekdays
	d.AvailableTimeSlots = av.TimeSlots

	return d, errs.Err()
}

// PatientInput is the body of POST /patients.
type PatientInput struct {
	UserID           string `json:"user_id"`
	FullName         string `json:"full_name"`
	BloodGroup       string `json:"blood_group"`
	Allergies        string `json:"allergies"`
	EmergencyContact string `json:"emergency_contact"`
}

func (in PatientInput) Validate() (*Patient, error) {
	var errs ValidationErrors
	p := &Patient{
		UserID:           strings.TrimSpace(in.UserID),
		FullName:         strings.TrimSpace(in.FullName),
		BloodGroup:       strings.ToUpper(strings.TrimSpace(in.BloodGroup)),
		Allergies:        strings.TrimSpace(in.Allergies),
		EmergencyContact: strings.TrimSpace(in.EmergencyContact),
	}
	if p.UserID == "" {
		errs.Add("user_id", "is required")
	}
	if p.FullName == "" {
		errs.Add("full_name", "is required")
	}
	if len(p.BloodGroup) > 5 {
		errs.Add("blood_group", "must be at most 5 characters")
	}
	return p, errs.Err()
}
