package scheduling

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func fieldsOf(err error) []string {
	var ve ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, len(ve))
	for i, fe := range ve {
		out[i] = fe.Field
	}
	return out
}

func TestBookingInput_Validate(t *testing.T) {
	req, err := BookingInput{DoctorID: 1, PatientID: 2, Date: "2025-06-10", Time: "10:00", Reason: "fever"}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Time.String() != "10:00:00" || req.Reason != ReasonFever {
		t.Errorf("unexpected request %+v", req)
	}

	req, err = BookingInput{DoctorID: 1, PatientID: 2, Date: "2025-06-10", Time: "10:00:00"}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Reason != ReasonConsult {
		t.Errorf("expected default reason CONSULT, got %s", req.Reason)
	}
}

func TestBookingInput_Validate_CollectsAllFields(t *testing.T) {
	_, err := BookingInput{Date: "tomorrow", Time: "10am", Reason: "OTHER", OtherReason: strings.Repeat("x", 101)}.Validate()
	got := fieldsOf(err)
	want := []string{"doctor_id", "patient_id", "date", "time", "reason", "other_reason"}
	if !slices.Equal(got, want) {
		t.Errorf("expected fields %v, got %v", want, got)
	}
}

func TestSlotQueryInput_Validate(t *testing.T) {
	defaults := SlotQuery{Start: NewTimeOfDay(9, 0, 0), End: NewTimeOfDay(17, 0, 0), Duration: 30}

	q, err := SlotQueryInput{Date: "2025-06-10"}.Validate(defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Start != defaults.Start || q.End != defaults.End || q.Duration != 30 {
		t.Errorf("expected defaults, got %+v", q)
	}

	q, err = SlotQueryInput{Date: "2025-06-10", Start: "10:00", End: "12:00:00", Duration: "15"}.Validate(defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Start.String() != "10:00:00" || q.End.String() != "12:00:00" || q.Duration != 15 {
		t.Errorf("expected overrides, got %+v", q)
	}

	_, err = SlotQueryInput{Start: "x", End: "y", Duration: "half"}.Validate(defaults)
	if got := fieldsOf(err); !slices.Equal(got, []string{"date", "start", "end", "duration"}) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestSlotQueryInput_NegativeDurationPassesThrough(t *testing.T) {
	q, err := SlotQueryInput{Date: "2025-06-10", Duration: "-5"}.Validate(SlotQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Duration != -5 {
		t.Errorf("expected -5 to reach the allocator, got %d", q.Duration)
	}
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2025-06-01", "2025-06-30")
	if err != nil || from.String() != "2025-06-01" || to.String() != "2025-06-30" {
		t.Errorf("unexpected result %s %s %v", from, to, err)
	}
	_, _, err = ParseDateRange("", "June")
	if got := fieldsOf(err); !slices.Equal(got, []string{"from", "to"}) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestParseDateRange_Span(t *testing.T) {
	if _, _, err := ParseDateRange("2025-01-01", "2026-01-02"); err != nil {
		t.Errorf("366 days should be accepted, got %v", err)
	}
	_, _, err := ParseDateRange("2025-01-01", "2026-01-03")
	if got := fieldsOf(err); !slices.Equal(got, []string{"to"}) {
		t.Errorf("expected to field error for 367 days, got %v", got)
	}
	_, _, err = ParseDateRange("0001-01-01", "9999-12-31")
	if got := fieldsOf(err); !slices.Equal(got, []string{"to"}) {
		t.Errorf("expected to field error, got %v", got)
	}
	if _, _, err := ParseDateRange("2026-01-03", "2025-01-01"); err != nil {
		t.Errorf("reversed range is left to the allocator, got %v", err)
	}
}

func TestAvailabilityInput_Validate(t *testing.T) {
	out, err := AvailabilityInput{Weekdays: []int{5, 1, 3, 1}, TimeSlots: []string{" 09:00:00 ", "", "not-a-time"}}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(out.Weekdays, []int{1, 3, 5}) {
		t.Errorf("expected sorted unique weekdays, got %v", out.Weekdays)
	}
	if !slices.Equal(out.TimeSlots, []string{"09:00:00", "not-a-time"}) {
		t.Errorf("expected malformed slot kept verbatim, got %v", out.TimeSlots)
	}

	_, err = AvailabilityInput{Weekdays: []int{7, -1}}.Validate()
	if got := fieldsOf(err); len(got) != 2 {
		t.Errorf("expected two weekday errors, got %v", got)
	}
}

func TestStatusInput_Validate(t *testing.T) {
	status, end, err := StatusInput{Status: "Completed", EndTime: "11:15"}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusCompleted || end == nil || end.String() != "11:15:00" {
		t.Errorf("unexpected result %s %v", status, end)
	}

	_, _, err = StatusInput{Status: "done", EndTime: "late"}.Validate()
	if got := fieldsOf(err); !slices.Equal(got, []string{"status", "end_time"}) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestCancelInput_Validate(t *testing.T) {
	tests := []struct {
		reason  string
		wantErr bool
	}{
		{"", true},
		{"   ", true},
		{"too short", true},
		{"   short     ", true},
		{"feeling better now", false},
	}
	for _, tt := range tests {
		_, err := CancelInput{Reason: tt.reason}.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("CancelInput{%q} error = %v, wantErr %v", tt.reason, err, tt.wantErr)
		}
	}
}

func TestDoctorInput_Validate(t *testing.T) {
	d, err := DoctorInput{UserID: "u-1", FullName: " Dr. Ayesha Khan ", AvailableWeekdays: []int{1}}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.FullName != "Dr. Ayesha Khan" || d.ConsultationFee != 2000 || !d.IsActive || d.LicenseNumber != nil {
		t.Errorf("unexpected doctor %+v", d)
	}

	fee := -1
	_, err = DoctorInput{ConsultationFee: &fee, AvailableWeekdays: []int{8}}.Validate()
	if got := fieldsOf(err); !slices.Equal(got, []string{"user_id", "full_name", "consultation_fee", "available_weekdays"}) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestPatientInput_Validate(t *testing.T) {
	p, err := PatientInput{UserID: "u-2", FullName: "Bilal", BloodGroup: "ab+"}.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.BloodGroup != "AB+" {
		t.Errorf("expected upper-cased blood group, got %q", p.BloodGroup)
	}

	_, err = PatientInput{BloodGroup: "unknown"}.Validate()
	if got := fieldsOf(err); !slices.Equal(got, []string{"user_id", "full_name", "blood_group"}) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestValidationErrors_Err(t *testing.T) {
	var v ValidationErrors
	if v.Err() != nil {
		t.Error("expected nil for no errors")
	}
	v.Add("date", "must be %s", "YYYY-MM-DD")
	if v.Err() == nil || !strings.Contains(v.Error(), "date: must be YYYY-MM-DD") {
		t.Errorf("unexpected error text %q", v.Error())
	}
}
