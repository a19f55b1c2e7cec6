package prescription

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
)

var adminPrincipal = auth.Principal{Subject: "root", Roles: []string{auth.RoleAdmin}}

func doctorPrincipal(id int64) auth.Principal {
	return auth.Principal{Subject: fmt.Sprintf("doc-%d", id), Roles: []string{auth.RoleDoctor}, DoctorID: id}
}

func patientPrincipal(id int64) auth.Principal {
	return auth.Principal{Subject: fmt.Sprintf("pat-%d", id), Roles: []string{auth.RolePatient}, PatientID: id}
}

func newCtx(e *echo.Echo, p auth.Principal, method, target, body string, id int64) (echo.Context, *httptest.ResponseRecorder) {
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
	c := e.NewContext(req, rec)
	if id != 0 {
		c.SetParamNames("id")
		c.SetParamValues(fmt.Sprint(id))
	}
	return c, rec
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

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewHandler(env.svc), echo.New(), env
}

const rxBody = `{"diagnosis":"Viral fever","medicines":[{"name":"Paracetamol","dosage":"500mg"}],"advice":"Rest","follow_up_date":"2025-06-18"}`

func TestHandler_Create(t *testing.T) {
	h, e, _ := newTestHandler(t)

	c, rec := newCtx(e, doctorPrincipal(10), http.MethodPost, "/", rxBody, 1)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var rx Prescription
	if err := json.Unmarshal(rec.Body.Bytes(), &rx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rx.AppointmentID != 1 || rx.Diagnosis != "Viral fever" || len(rx.Medicines) != 1 {
		t.Errorf("unexpected body %+v", rx)
	}
	if rx.FollowUpDate == nil || rx.FollowUpDate.String() != "2025-06-18" {
		t.Errorf("unexpected follow-up %v", rx.FollowUpDate)
	}
}

func TestHandler_Create_Rejections(t *testing.T) {
	h, e, _ := newTestHandler(t)

	tests := []struct {
		name string
		p    auth.Principal
		id   int64
		body string
		code int
	}{
		{"other doctor", doctorPrincipal(11), 1, rxBody, http.StatusForbidden},
		{"admin cannot prescribe", adminPrincipal, 1, rxBody, http.StatusForbidden},
		{"missing diagnosis", doctorPrincipal(10), 1, `{"medicines":[]}`, http.StatusBadRequest},
		{"pending appointment", doctorPrincipal(10), 2, rxBody, http.StatusConflict},
		{"cancelled appointment", doctorPrincipal(10), 4, rxBody, http.StatusConflict},
		{"unknown appointment", doctorPrincipal(10), 99, rxBody, http.StatusNotFound},
		{"follow-up on visit day", doctorPrincipal(10), 1, `{"diagnosis":"Flu","follow_up_date":"2025-06-11"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCtx(e, tt.p, http.MethodPost, "/", tt.body, tt.id)
			expectStatus(t, h.Create(c), tt.code)
		})
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := newCtx(e, auth.Principal{}, http.MethodGet, "/", "", 1)
	expectStatus(t, h.Get(c), http.StatusUnauthorized)
}

func TestHandler_GetOwnership(t *testing.T) {
	h, e, env := newTestHandler(t)
	rx, err := env.svc.Create(context.Background(), 1, "doctor:10", validRx(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, p := range []auth.Principal{adminPrincipal, doctorPrincipal(10), patientPrincipal(20)} {
		c, rec := newCtx(e, p, http.MethodGet, "/", "", rx.ID)
		if err := h.Get(c); err != nil {
			t.Errorf("%s: unexpected error: %v", p.Subject, err)
		} else if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", p.Subject, rec.Code)
		}
	}
	for _, p := range []auth.Principal{doctorPrincipal(11), patientPrincipal(21)} {
		c, _ := newCtx(e, p, http.MethodGet, "/", "", rx.ID)
		expectStatus(t, h.Get(c), http.StatusForbidden)
	}

	c, _ := newCtx(e, adminPrincipal, http.MethodGet, "/", "", 99)
	expectStatus(t, h.Get(c), http.StatusNotFound)
}

func TestHandler_ListScopedByRole(t *testing.T) {
	h, e, env := newTestHandler(t)
	ctx := context.Background()
	for _, id := range []int64{1, 3, 5} {
		if _, err := env.svc.Create(ctx, id, "doctor", validRx(t)); err != nil {
			t.Fatalf("Create(%d): %v", id, err)
		}
	}

	tests := []struct {
		name  string
		p     auth.Principal
		query string
		want  int
	}{
		{"admin sees all", adminPrincipal, "/", 3},
		{"admin filters by patient", adminPrincipal, "/?patient_id=21", 1},
		{"doctor sees own", doctorPrincipal(10), "/?doctor_id=11", 2},
		{"patient sees own", patientPrincipal(21), "/", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newCtx(e, tt.p, http.MethodGet, tt.query, "", 0)
			if err := h.List(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var body struct {
				Total int `json:"total"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Total != tt.want {
				t.Errorf("expected total %d, got %d", tt.want, body.Total)
			}
		})
	}

	c, _ := newCtx(e, adminPrincipal, http.MethodGet, "/?doctor_id=abc", "", 0)
	expectStatus(t, h.List(c), http.StatusBadRequest)

	c, _ = newCtx(e, auth.Principal{Subject: "nobody", Roles: []string{auth.RoleDoctor}}, http.MethodGet, "/", "", 0)
	expectStatus(t, h.List(c), http.StatusForbidden)
}

func TestHandler_ListForAppointment(t *testing.T) {
	h, e, env := newTestHandler(t)
	if _, err := env.svc.Create(context.Background(), 1, "doctor:10", validRx(t)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c, rec := newCtx(e, patientPrincipal(20), http.MethodGet, "/", "", 1)
	if err := h.ListForAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one prescription, got %s", rec.Body.String())
	}

	c, _ = newCtx(e, patientPrincipal(21), http.MethodGet, "/", "", 1)
	expectStatus(t, h.ListForAppointment(c), http.StatusForbidden)
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	h, e, env := newTestHandler(t)
	rx, err := env.svc.Create(context.Background(), 1, "doctor:10", validRx(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c, _ := newCtx(e, patientPrincipal(20), http.MethodPut, "/", `{"diagnosis":"x"}`, rx.ID)
	expectStatus(t, h.Update(c), http.StatusForbidden)

	c, _ = newCtx(e, doctorPrincipal(10), http.MethodPut, "/", `{"diagnosis":""}`, rx.ID)
	expectStatus(t, h.Update(c), http.StatusBadRequest)

	c, rec := newCtx(e, doctorPrincipal(10), http.MethodPut, "/", `{"diagnosis":"Typhoid","is_digital_signature":true}`, rx.ID)
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"diagnosis":"Typhoid"`) {
		t.Errorf("expected updated diagnosis, got %s", rec.Body.String())
	}

	c, _ = newCtx(e, doctorPrincipal(11), http.MethodDelete, "/", "", rx.ID)
	expectStatus(t, h.Delete(c), http.StatusForbidden)

	c, rec = newCtx(e, doctorPrincipal(10), http.MethodDelete, "/", "", rx.ID)
	if err := h.Delete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
