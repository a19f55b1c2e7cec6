package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/pkg/pagination"
)

var adminPrincipal = auth.Principal{Subject: "root", Roles: []string{auth.RoleAdmin}}

func doctorPrincipal(id int64) auth.Principal {
	return auth.Principal{Subject: fmt.Sprintf("doc-%d", id), Roles: []string{auth.RoleDoctor}, DoctorID: id}
}

func patientPrincipal(id int64) auth.Principal {
	return auth.Principal{Subject: fmt.Sprintf("pat-%d", id), Roles: []string{auth.RolePatient}, PatientID: id}
}

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *testEnv) {
	t.Helper()
	env := newTestEnv(testSettings)
	return NewHandler(env.svc), echo.New(), env
}

// newCtx builds an echo context for target with p attached as the caller.
// A zero Principal leaves the request unauthenticated.
func newCtx(e *echo.Echo, p auth.Principal, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if p.Subject != "" {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withID(c echo.Context, id int64) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(id))
	return c
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", code, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d (%v)", code, he.Code, he.Message)
	}
}

// -- Doctor Handlers --

func TestHandler_CreateDoctor(t *testing.T) {
	h, e, _ := newTestHandler(t)
	body := `{"user_id":"doc-9","full_name":"Dr. Sana Mir","specialization":"Dermatology","available_weekdays":[1,3]}`
	c, rec := newCtx(e, adminPrincipal, http.MethodPost, "/doctors", body)

	if err := h.CreateDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var d Doctor
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.ID == 0 || d.ConsultationFee != 2000 || !d.IsActive {
		t.Errorf("unexpected doctor %+v", d)
	}
}

func TestHandler_CreateDoctor_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := newCtx(e, adminPrincipal, http.MethodPost, "/doctors", `{}`)
	expectStatus(t, h.CreateDoctor(c), http.StatusBadRequest)
}

func TestHandler_GetDoctor(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, _ := env.seed(t)

	c, rec := newCtx(e, patientPrincipal(1), http.MethodGet, "/", "")
	if err := h.GetDoctor(withID(c, d.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newCtx(e, patientPrincipal(1), http.MethodGet, "/", "")
	expectStatus(t, h.GetDoctor(withID(c, 404)), http.StatusNotFound)

	c, _ = newCtx(e, patientPrincipal(1), http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")
	expectStatus(t, h.GetDoctor(c), http.StatusBadRequest)
}

func TestHandler_ListDoctors(t *testing.T) {
	h, e, env := newTestHandler(t)
	env.seed(t)
	env.svc.CreateDoctor(context.Background(), &Doctor{UserID: "doc-2", FullName: "Dr. Inactive"})

	c, rec := newCtx(e, patientPrincipal(1), http.MethodGet, "/doctors?limit=10", "")
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected only the active doctor, got total %d", resp.Total)
	}
	if resp.Links == nil || resp.Links.Self == "" {
		t.Error("expected pagination links")
	}

	c, rec = newCtx(e, adminPrincipal, http.MethodGet, "/doctors?include_inactive=true", "")
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp = pagination.Response{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected both doctors, got total %d", resp.Total)
	}
}

func TestHandler_UpdateAvailability(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, _ := env.seed(t)
	body := `{"available_weekdays":[2,4],"available_time_slots":["10:00:00"]}`

	c, rec := newCtx(e, doctorPrincipal(d.ID), http.MethodPut, "/", body)
	if err := h.UpdateAvailability(withID(c, d.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newCtx(e, doctorPrincipal(d.ID+1), http.MethodPut, "/", body)
	expectStatus(t, h.UpdateAvailability(withID(c, d.ID)), http.StatusForbidden)

	c, _ = newCtx(e, doctorPrincipal(d.ID), http.MethodPut, "/", `{"available_weekdays":[7]}`)
	expectStatus(t, h.UpdateAvailability(withID(c, d.ID)), http.StatusBadRequest)
}

func TestHandler_AvailableSlots(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, _ := env.seed(t)

	c, rec := newCtx(e, patientPrincipal(1), http.MethodGet, "/?date=2025-06-11&start=09:00&end=10:00&duration=20", "")
	if err := h.AvailableSlots(withID(c, d.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		Slots []string `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(got.Slots, ",") != "09:00:00,09:20:00,09:40:00" {
		t.Errorf("unexpected slots %v", got.Slots)
	}
}

func TestHandler_AvailableSlots_Errors(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, _ := env.seed(t)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"missing date", "/", http.StatusBadRequest},
		{"bad duration", "/?date=2025-06-11&duration=0", http.StatusBadRequest},
		{"negative duration", "/?date=2025-06-11&duration=-15", http.StatusBadRequest},
		{"duration past int64 minutes", "/?date=2025-06-11&duration=9223372036854775807", http.StatusBadRequest},
		{"duration longer than a day", "/?date=2025-06-11&duration=153722868", http.StatusBadRequest},
		{"past date", "/?date=2025-06-01", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCtx(e, patientPrincipal(1), http.MethodGet, tt.query, "")
			expectStatus(t, h.AvailableSlots(withID(c, d.ID)), tt.code)
		})
	}
}

func TestHandler_AvailabilitySummary(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, _ := env.seed(t)

	c, rec := newCtx(e, doctorPrincipal(d.ID), http.MethodGet, "/?from=2025-06-09&to=2025-06-13", "")
	if err := h.AvailabilitySummary(withID(c, d.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum AvailabilitySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.EstimatedSlots != 40 {
		t.Errorf("expected 40 estimated slots, got %d", sum.EstimatedSlots)
	}

	c, _ = newCtx(e, doctorPrincipal(d.ID), http.MethodGet, "/?from=2025-06-13&to=2025-06-09", "")
	expectStatus(t, h.AvailabilitySummary(withID(c, d.ID)), http.StatusBadRequest)

	c, _ = newCtx(e, doctorPrincipal(d.ID), http.MethodGet, "/?from=0001-01-01&to=9999-12-31", "")
	expectStatus(t, h.AvailabilitySummary(withID(c, d.ID)), http.StatusBadRequest)

	c, _ = newCtx(e, doctorPrincipal(d.ID+5), http.MethodGet, "/?from=2025-06-09&to=2025-06-13", "")
	expectStatus(t, h.AvailabilitySummary(withID(c, d.ID)), http.StatusForbidden)
}

// -- Patient Handlers --

func TestHandler_CreateAndGetPatient(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, rec := newCtx(e, adminPrincipal, http.MethodPost, "/patients", `{"user_id":"pat-7","full_name":"Hira","blood_group":"o-"}`)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.BloodGroup != "O-" {
		t.Errorf("expected O-, got %q", p.BloodGroup)
	}

	c, rec = newCtx(e, patientPrincipal(p.ID), http.MethodGet, "/", "")
	if err := h.GetPatient(withID(c, p.ID)); err != nil || rec.Code != http.StatusOK {
		t.Errorf("owner should read own record: %v %d", err, rec.Code)
	}

	c, _ = newCtx(e, patientPrincipal(p.ID+1), http.MethodGet, "/", "")
	expectStatus(t, h.GetPatient(withID(c, p.ID)), http.StatusForbidden)

	c, _ = newCtx(e, doctorPrincipal(3), http.MethodGet, "/", "")
	if err := h.GetPatient(withID(c, p.ID)); err != nil {
		t.Errorf("doctors may read patients, got %v", err)
	}
}

// -- Appointment Handlers --

func TestHandler_BookAppointment(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, p := env.seed(t)

	body := fmt.Sprintf(`{"doctor_id":%d,"date":"2025-06-11","time":"10:00","reason":"FEVER"}`, d.ID)
	c, rec := newCtx(e, patientPrincipal(p.ID), http.MethodPost, "/appointments", body)
	if err := h.BookAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.PatientID != p.ID || a.Time.String() != "10:00:00" || a.Status != StatusPending {
		t.Errorf("unexpected appointment %+v", a)
	}

	c, _ = newCtx(e, patientPrincipal(p.ID), http.MethodPost, "/appointments", body)
	expectStatus(t, h.BookAppointment(c), http.StatusConflict)
}

func TestHandler_BookAppointment_Rejections(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, p := env.seed(t)

	tests := []struct {
		name   string
		caller auth.Principal
		body   string
		code   int
	}{
		{"other patient", patientPrincipal(p.ID + 1), fmt.Sprintf(`{"doctor_id":%d,"patient_id":%d,"date":"2025-06-11","time":"10:00"}`, d.ID, p.ID), http.StatusForbidden},
		{"past date", patientPrincipal(p.ID), fmt.Sprintf(`{"doctor_id":%d,"date":"2025-06-01","time":"10:00"}`, d.ID), http.StatusUnprocessableEntity},
		{"bad time", patientPrincipal(p.ID), fmt.Sprintf(`{"doctor_id":%d,"date":"2025-06-11","time":"ten"}`, d.ID), http.StatusBadRequest},
		{"unknown doctor", adminPrincipal, fmt.Sprintf(`{"doctor_id":999,"patient_id":%d,"date":"2025-06-11","time":"10:00"}`, p.ID), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCtx(e, tt.caller, http.MethodPost, "/appointments", tt.body)
			expectStatus(t, h.BookAppointment(c), tt.code)
		})
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := newCtx(e, auth.Principal{}, http.MethodGet, "/appointments", "")
	expectStatus(t, h.ListAppointments(c), http.StatusUnauthorized)
}

func TestHandler_ListAppointments_ScopedByRole(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, p := env.seed(t)
	ctx := context.Background()
	other := &Patient{UserID: "pat-2", FullName: "Other"}
	env.svc.CreatePatient(ctx, other)

	env.svc.BookAppointment(ctx, bookingFor(t, d, p, "2025-06-11", "09:00"))
	env.svc.BookAppointment(ctx, bookingFor(t, d, other, "2025-06-11", "09:30"))

	count := func(caller auth.Principal, target string) int {
		t.Helper()
		c, rec := newCtx(e, caller, http.MethodGet, target, "")
		if err := h.ListAppointments(c); err != nil {
			t.Fatalf("ListAppointments(%s): %v", caller.Subject, err)
		}
		var resp pagination.Response
		json.Unmarshal(rec.Body.Bytes(), &resp)
		return resp.Total
	}

	if n := count(adminPrincipal, "/appointments"); n != 2 {
		t.Errorf("admin: expected 2, got %d", n)
	}
	if n := count(doctorPrincipal(d.ID), "/appointments"); n != 2 {
		t.Errorf("doctor: expected 2, got %d", n)
	}
	if n := count(patientPrincipal(p.ID), "/appointments?patient_id=999"); n != 1 {
		t.Errorf("patient: expected own 1, got %d", n)
	}

	c, _ := newCtx(e, adminPrincipal, http.MethodGet, "/appointments?status=archived", "")
	expectStatus(t, h.ListAppointments(c), http.StatusBadRequest)
}

func TestHandler_GetAppointment_Ownership(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, p := env.seed(t)
	a, _ := env.svc.BookAppointment(context.Background(), bookingFor(t, d, p, "2025-06-11", "09:00"))

	for _, caller := range []auth.Principal{adminPrincipal, doctorPrincipal(d.ID), patientPrincipal(p.ID)} {
		c, rec := newCtx(e, caller, http.MethodGet, "/", "")
		if err := h.GetAppointment(withID(c, a.ID)); err != nil || rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %v %d", caller.Subject, err, rec.Code)
		}
	}

	c, _ := newCtx(e, patientPrincipal(p.ID+1), http.MethodGet, "/", "")
	expectStatus(t, h.GetAppointment(withID(c, a.ID)), http.StatusForbidden)
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, p := env.seed(t)
	a, _ := env.svc.BookAppointment(context.Background(), bookingFor(t, d, p, "2025-06-11", "09:00"))

	c, rec := newCtx(e, doctorPrincipal(d.ID), http.MethodPatch, "/", `{"status":"confirmed"}`)
	if err := h.UpdateStatus(withID(c, a.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newCtx(e, doctorPrincipal(d.ID), http.MethodPatch, "/", `{"status":"pending"}`)
	expectStatus(t, h.UpdateStatus(withID(c, a.ID)), http.StatusConflict)

	c, _ = newCtx(e, doctorPrincipal(d.ID), http.MethodPatch, "/", `{"status":"completed","end_time":"08:00"}`)
	expectStatus(t, h.UpdateStatus(withID(c, a.ID)), http.StatusBadRequest)

	c, _ = newCtx(e, patientPrincipal(p.ID), http.MethodPatch, "/", `{"status":"completed"}`)
	expectStatus(t, h.UpdateStatus(withID(c, a.ID)), http.StatusForbidden)
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, e, env := newTestHandler(t)
	d, p := env.seed(t)
	a, _ := env.svc.BookAppointment(context.Background(), bookingFor(t, d, p, "2025-06-11", "09:00"))

	c, _ := newCtx(e, patientPrincipal(p.ID), http.MethodPost, "/", `{"reason":"sick"}`)
	expectStatus(t, h.CancelAppointment(withID(c, a.ID)), http.StatusBadRequest)

	c, rec := newCtx(e, patientPrincipal(p.ID), http.MethodPost, "/", `{"reason":"Schedule clash at work"}`)
	if err := h.CancelAppointment(withID(c, a.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Appointment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusCancelled || got.CancelledBy != fmt.Sprintf("patient:%d", p.ID) {
		t.Errorf("unexpected appointment %+v", got)
	}
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ValidationErrors{{Field: "date", Message: "is required"}}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrInvalidRange), http.StatusBadRequest},
		{ErrInvalidDuration, http.StatusBadRequest},
		{ErrInvalidTimeRange, http.StatusBadRequest},
		{ErrPastDate, http.StatusUnprocessableEntity},
		{ErrDailyLimitReached, http.StatusUnprocessableEntity},
		{ErrDoctorInactive, http.StatusUnprocessableEntity},
		{ErrSlotConflict, http.StatusConflict},
		{ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("doctor 1: %w", ErrNotFound), http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		expectStatus(t, HTTPError(tt.err), tt.code)
	}
}
