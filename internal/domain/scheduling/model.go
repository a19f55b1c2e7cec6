package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctor table.
type Doctor struct {
	ID                 int64     `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	FullName           string    `db:"full_name" json:"full_name"`
	Specialization     string    `db:"specialization" json:"specialization"`
	Hospital           string    `db:"hospital" json:"hospital"`
	City               string    `db:"city" json:"city"`
	LicenseNumber      *string   `db:"license_number" json:"license_number,omitempty"`
	ConsultationFee    int       `db:"consultation_fee" json:"consultation_fee"`
	AvailableWeekdays  []int     `db:"available_weekdays" json:"available_weekdays"`
	AvailableTimeSlots []string  `db:"available_time_slots" json:"available_time_slots"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Availability returns the subset of the doctor the allocator reads.
func (d *Doctor) Availability() DoctorAvailability {
	return DoctorAvailability{
		DoctorID:  d.ID,
		Weekdays:  d.AvailableWeekdays,
		TimeSlots: d.AvailableTimeSlots,
	}
}

// DoctorAvailability is a doctor's recurring weekly availability. Weekdays
// use time.Weekday numbering (0 = Sunday). TimeSlots are raw "HH:MM:SS"
// anchors as stored; malformed entries are tolerated here.
type DoctorAvailability struct {
	DoctorID  int64    `json:"doctor_id"`
	Weekdays  []int    `json:"available_weekdays"`
	TimeSlots []string `json:"available_time_slots"`
}

// Patient maps to the patient table.
type Patient struct {
	ID               int64     `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	FullName         string    `db:"full_name" json:"full_name"`
	BloodGroup       string    `db:"blood_group" json:"blood_group,omitempty"`
	Allergies        string    `db:"allergies" json:"allergies,omitempty"`
	EmergencyContact string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Reason string

const (
	ReasonCheckup Reason = "CHECKUP"
	ReasonConsult Reason = "CONSULT"
	ReasonFever   Reason = "FEVER"
	ReasonInjury  Reason = "INJURY"
)

var reasonLabels = map[Reason]string{
	ReasonCheckup: "Routine Checkup",
	ReasonConsult: "General Consultation",
	ReasonFever:   "Fever/Infection",
	ReasonInjury:  "Injury Treatment",
}

func (r Reason) Valid() bool {
	_, ok := reasonLabels[r]
	return ok
}

// Label returns the human-readable reason.
func (r Reason) Label() string { return reasonLabels[r] }

// Appointment maps to the appointment table.
type Appointment struct {
	ID                 int64      `db:"id" json:"id"`
	Reference          uuid.UUID  `db:"reference" json:"reference"`
	DoctorID           int64      `db:"doctor_id" json:"doctor_id"`
	PatientID          int64      `db:"patient_id" json:"patient_id"`
	Date               Date       `db:"date" json:"date"`
	Time               TimeOfDay  `db:"time" json:"time"`
	EndTime            *TimeOfDay `db:"end_time" json:"end_time,omitempty"`
	Status             Status     `db:"status" json:"status"`
	Reason             Reason     `db:"reason" json:"reason"`
	OtherReason        string     `db:"other_reason" json:"other_reason,omitempty"`
	Symptoms           string     `db:"symptoms" json:"symptoms,omitempty"`
	CancellationReason string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy        string     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// DoctorFilter narrows ListDoctors.
type DoctorFilter struct {
	Specialization string
	City           string
	ActiveOnly     bool
}

// AppointmentFilter narrows ListAppointments. Zero fields are ignored.
type AppointmentFilter struct {
	DoctorID  int64
	PatientID int64
	Status    Status
	From      Date
	To        Date
}

// AvailabilitySummary reports the slot estimate next to actual bookings.
// EstimatedSlots does not subtract BookedAppointments.
type AvailabilitySummary struct {
	DoctorID           int64 `json:"doctor_id"`
	From               Date  `json:"from"`
	To                 Date  `json:"to"`
	BusinessDays       int   `json:"business_days"`
	Anchors            int   `json:"anchors"`
	EstimatedSlots     int   `json:"estimated_slots"`
	BookedAppointments int   `json:"booked_appointments"`
}

// SlotList is the response for a single day's bookable start times.
type SlotList struct {
	DoctorID int64       `json:"doctor_id"`
	Date     Date        `json:"date"`
	Duration int         `json:"duration_minutes"`
	Slots    []TimeOfDay `json:"slots"`
}
