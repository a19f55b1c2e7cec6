package scheduling

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scheduling API on an authenticated group.
// Role gates sit on the routes; per-record ownership is checked in the
// handlers before the service is called.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	adminOnly := auth.RequireRole(auth.RoleAdmin)

	api.POST("/doctors", h.CreateDoctor, adminOnly)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/:id/availability", h.UpdateAvailability, auth.RequireRole(auth.RoleDoctor))
	api.GET("/doctors/:id/slots", h.AvailableSlots)
	api.GET("/doctors/:id/availability/summary", h.AvailabilitySummary, auth.RequireRole(auth.RoleDoctor))

	api.POST("/patients", h.CreatePatient, adminOnly)
	api.GET("/patients/:id", h.GetPatient)

	api.POST("/appointments", h.BookAppointment, auth.RequireRole(auth.RolePatient))
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PATCH("/appointments/:id/status", h.UpdateStatus, auth.RequireRole(auth.RoleDoctor))
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func parseOptionalID(c echo.Context, name string, errs *ValidationErrors) int64 {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		errs.Add(name, "must be a positive integer")
		return 0
	}
	return id
}

func forbidden(format string, args ...interface{}) error {
	return HTTPError(fmt.Errorf("%w: "+format, append([]interface{}{ErrForbidden}, args...)...))
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := in.Validate()
	if err != nil {
		return HTTPError(err)
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{
		Specialization: c.QueryParam("specialization"),
		City:           c.QueryParam("city"),
		ActiveOnly:     c.QueryParam("include_inactive") != "true",
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := principal(c)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !p.IsDoctor(id) {
		return forbidden("doctor %d availability", id)
	}

	var in AvailabilityInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateAvailability(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	q, err := SlotQueryInput{
		Date:     c.QueryParam("date"),
		Start:    c.QueryParam("start"),
		End:      c.QueryParam("end"),
		Duration: c.QueryParam("duration"),
	}.Validate(h.svc.SlotDefaults())
	if err != nil {
		return HTTPError(err)
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), id, q)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) AvailabilitySummary(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := principal(c)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !p.IsDoctor(id) {
		return forbidden("doctor %d availability summary", id)
	}

	from, to, err := ParseDateRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return HTTPError(err)
	}
	summary, err := h.svc.AvailabilitySummary(c.Request().Context(), id, from, to)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := in.Validate()
	if err != nil {
		return HTTPError(err)
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := principal(c)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !p.HasRole(auth.RoleDoctor) && !p.IsPatient(id) {
		return forbidden("patient %d", id)
	}
	patient, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, patient)
}

// -- Appointment Handlers --

// BookAppointment lets a patient book for themselves; an admin may book for
// any patient.
func (h *Handler) BookAppointment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var in BookingInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !p.IsAdmin() {
		if in.PatientID == 0 {
			in.PatientID = p.PatientID
		}
		if !p.IsPatient(in.PatientID) {
			return forbidden("booking for patient %d", in.PatientID)
		}
	}

	req, err := in.Validate()
	if err != nil {
		return HTTPError(err)
	}
	appt, err := h.svc.BookAppointment(c.Request().Context(), req)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

// ListAppointments scopes doctors and patients to their own appointments;
// admins may filter freely.
func (h *Handler) ListAppointments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var errs ValidationErrors
	f := AppointmentFilter{
		DoctorID:  parseOptionalID(c, "doctor_id", &errs),
		PatientID: parseOptionalID(c, "patient_id", &errs),
	}
	if s := c.QueryParam("status"); s != "" {
		f.Status = Status(s)
		if !f.Status.Valid() {
			errs.Add("status", "must be one of pending, confirmed, cancelled, completed")
		}
	}
	if from := c.QueryParam("from"); from != "" {
		if f.From, err = ParseDate(from); err != nil {
			errs.Add("from", "must be YYYY-MM-DD")
		}
	}
	if to := c.QueryParam("to"); to != "" {
		if f.To, err = ParseDate(to); err != nil {
			errs.Add("to", "must be YYYY-MM-DD")
		}
	}
	if err := errs.Err(); err != nil {
		return HTTPError(err)
	}

	switch {
	case p.IsAdmin():
	case p.HasRole(auth.RoleDoctor) && p.DoctorID != 0:
		f.DoctorID = p.DoctorID
	case p.HasRole(auth.RolePatient) && p.PatientID != 0:
		f.PatientID = p.PatientID
	default:
		return forbidden("appointment list")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

// loadAppointment fetches the appointment and checks that p may see it.
func (h *Handler) loadAppointment(c echo.Context, p auth.Principal) (*Appointment, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return nil, HTTPError(err)
	}
	if !p.IsAdmin() && !p.IsDoctor(a.DoctorID) && !p.IsPatient(a.PatientID) {
		return nil, forbidden("appointment %d", id)
	}
	return a, nil
}

func (h *Handler) GetAppointment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	a, err := h.loadAppointment(c, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	a, err := h.loadAppointment(c, p)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && !p.IsDoctor(a.DoctorID) {
		return forbidden("appointment %d status", a.ID)
	}

	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status, endTime, err := in.Validate()
	if err != nil {
		return HTTPError(err)
	}
	updated, err := h.svc.UpdateStatus(c.Request().Context(), a.ID, p.Actor(), status, endTime)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	a, err := h.loadAppointment(c, p)
	if err != nil {
		return err
	}

	var in CancelInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cancelled, err := h.svc.CancelAppointment(c.Request().Context(), a.ID, p.Actor(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, cancelled)
}
