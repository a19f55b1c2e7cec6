package prescription

import (
	"time"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
)

// Medicine is one line of a prescription. It is stored inside the
// prescription's medicines JSON array.
type Medicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Prescription maps to the prescription table. DoctorID and PatientID are
// read from the linked appointment and are not stored.
type Prescription struct {
	ID                 int64            `db:"id" json:"id"`
	AppointmentID      int64            `db:"appointment_id" json:"appointment_id"`
	DoctorID           int64            `db:"doctor_id" json:"doctor_id"`
	PatientID          int64            `db:"patient_id" json:"patient_id"`
	Diagnosis          string           `db:"diagnosis" json:"diagnosis"`
	Medicines          []Medicine       `db:"medicines" json:"medicines"`
	Advice             string           `db:"advice" json:"advice,omitempty"`
	FollowUpDate       *scheduling.Date `db:"follow_up_date" json:"follow_up_date,omitempty"`
	IsDigitalSignature bool             `db:"is_digital_signature" json:"is_digital_signature"`
	CreatedBy          string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	AppointmentID int64
	DoctorID      int64
	PatientID     int64
}
