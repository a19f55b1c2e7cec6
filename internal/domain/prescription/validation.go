package prescription

import (
	"strings"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
)

const (
	maxMedicines    = 30
	maxMedicineName = 200
)

// Input is the body of POST /appointments/:id/prescriptions and
// PUT /prescriptions/:id.
type Input struct {
	Diagnosis          string     `json:"diagnosis"`
	Medicines          []Medicine `json:"medicines"`
	Advice             string     `json:"advice"`
	FollowUpDate       string     `json:"follow_up_date"`
	IsDigitalSignature bool       `json:"is_digital_signature"`
}

// Validate returns the prescription content described by in. The
// appointment link is set by the service.
func (in Input) Validate() (*Prescription, error) {
	var errs scheduling.ValidationErrors
	p := &Prescription{
		Diagnosis:          strings.TrimSpace(in.Diagnosis),
		Medicines:          make([]Medicine, 0, len(in.Medicines)),
		Advice:             strings.TrimSpace(in.Advice),
		IsDigitalSignature: in.IsDigitalSignature,
	}

	if p.Diagnosis == "" {
		errs.Add("diagnosis", "is required")
	}
	if len(in.Medicines) > maxMedicines {
		errs.Add("medicines", "must list at most %d entries", maxMedicines)
	}
	for i, m := range in.Medicines {
		m.Name = strings.TrimSpace(m.Name)
		m.Dosage = strings.TrimSpace(m.Dosage)
		m.Frequency = strings.TrimSpace(m.Frequency)
		m.Duration = strings.TrimSpace(m.Duration)
		m.Notes = strings.TrimSpace(m.Notes)
		switch {
		case m.Name == "":
			errs.Add("medicines", "entry %d: name is required", i)
		case len(m.Name) > maxMedicineName:
			errs.Add("medicines", "entry %d: name must be at most %d characters", i, maxMedicineName)
		}
		p.Medicines = append(p.Medicines, m)
	}
	if in.FollowUpDate != "" {
		d, err := scheduling.ParseDate(in.FollowUpDate)
		if err != nil {
			errs.Add("follow_up_date", "must be YYYY-MM-DD")
		} else {
			p.FollowUpDate = &d
		}
	}

	return p, errs.Err()
}
