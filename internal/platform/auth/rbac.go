package auth

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// Principal is the authenticated caller as seen by handlers.
type Principal struct {
	Subject   string
	Roles     []string
	DoctorID  int64
	PatientID int64
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

func (p Principal) IsAdmin() bool { return p.HasRole(RoleAdmin) }

// IsDoctor reports whether p acts as the doctor with the given id.
func (p Principal) IsDoctor(doctorID int64) bool {
	return p.HasRole(RoleDoctor) && p.DoctorID != 0 && p.DoctorID == doctorID
}

// IsPatient reports whether p acts as the patient with the given id.
func (p Principal) IsPatient(patientID int64) bool {
	return p.HasRole(RolePatient) && p.PatientID != 0 && p.PatientID == patientID
}

// Actor is the identity recorded on writes, e.g. "doctor:12".
func (p Principal) Actor() string {
	switch {
	case p.IsAdmin():
		return "admin:" + p.Subject
	case p.HasRole(RoleDoctor) && p.DoctorID != 0:
		return "doctor:" + strconv.FormatInt(p.DoctorID, 10)
	case p.HasRole(RolePatient) && p.PatientID != 0:
		return "patient:" + strconv.FormatInt(p.PatientID, 10)
	}
	return p.Subject
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireAuthenticated rejects requests without a principal.
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := PrincipalFromContext(c.Request().Context()); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}
