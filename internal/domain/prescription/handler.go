package prescription

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the prescription API. Only the appointment's doctor
// writes prescriptions; its patient and admins may read them.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctorOnly := auth.RequireRole(auth.RoleDoctor)

	api.POST("/appointments/:id/prescriptions", h.Create, doctorOnly)
	api.GET("/appointments/:id/prescriptions", h.ListForAppointment)
	api.GET("/prescriptions", h.List)
	api.GET("/prescriptions/:id", h.Get)
	api.PUT("/prescriptions/:id", h.Update, doctorOnly)
	api.DELETE("/prescriptions/:id", h.Delete, doctorOnly)
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func forbidden(format string, args ...interface{}) error {
	return httpError(fmt.Errorf("%w: "+format, append([]interface{}{scheduling.ErrForbidden}, args...)...))
}

func canRead(p auth.Principal, doctorID, patientID int64) bool {
	return p.IsAdmin() || p.IsDoctor(doctorID) || p.IsPatient(patientID)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !p.IsDoctor(a.DoctorID) {
		return forbidden("prescribing for appointment %d", a.ID)
	}

	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := in.Validate()
	if err != nil {
		return httpError(err)
	}
	created, err := h.svc.Create(c.Request().Context(), a.ID, p.Actor(), rx)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListForAppointment(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !canRead(p, a.DoctorID, a.PatientID) {
		return forbidden("prescriptions of appointment %d", a.ID)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), Filter{AppointmentID: a.ID}, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

// List scopes doctors and patients to their own prescriptions; admins may
// filter by doctor_id and patient_id.
func (h *Handler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var f Filter
	switch {
	case p.IsAdmin():
		var errs scheduling.ValidationErrors
		f.DoctorID = optionalID(c, "doctor_id", &errs)
		f.PatientID = optionalID(c, "patient_id", &errs)
		if err := errs.Err(); err != nil {
			return httpError(err)
		}
	case p.HasRole(auth.RoleDoctor) && p.DoctorID != 0:
		f.DoctorID = p.DoctorID
	case p.HasRole(auth.RolePatient) && p.PatientID != 0:
		f.PatientID = p.PatientID
	default:
		return forbidden("prescription list")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func optionalID(c echo.Context, name string, errs *scheduling.ValidationErrors) int64 {
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

// load fetches prescription :id and checks that p may read it.
func (h *Handler) load(c echo.Context, p auth.Principal) (*Prescription, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	rx, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if !canRead(p, rx.DoctorID, rx.PatientID) {
		return nil, forbidden("prescription %d", id)
	}
	return rx, nil
}

func (h *Handler) Get(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rx, err := h.load(c, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) Update(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rx, err := h.load(c, p)
	if err != nil {
		return err
	}
	if !p.IsDoctor(rx.DoctorID) {
		return forbidden("prescription %d", rx.ID)
	}

	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	changes, err := in.Validate()
	if err != nil {
		return httpError(err)
	}
	updated, err := h.svc.Update(c.Request().Context(), rx.ID, p.Actor(), changes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	rx, err := h.load(c, p)
	if err != nil {
		return err
	}
	if !p.IsDoctor(rx.DoctorID) {
		return forbidden("prescription %d", rx.ID)
	}
	if err := h.svc.Delete(c.Request().Context(), rx.ID, p.Actor()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
