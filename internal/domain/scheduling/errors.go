package scheduling

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	ErrInvalidRange      = errors.New("start date must not be after end date")
	ErrInvalidDuration   = errors.New("slot duration must be between 1 and 1440 minutes")
	ErrPastDate          = errors.New("you cannot book an appointment in the past")
	ErrSlotConflict      = errors.New("this time slot is already booked")
	ErrInvalidTransition = errors.New("appointment status change is not allowed")
	ErrInvalidTimeRange  = errors.New("end time must be after the appointment start time")
	ErrNotFound          = errors.New("not found")
	ErrDailyLimitReached = errors.New("the doctor has no more appointments available on this date")
	ErrDoctorInactive    = errors.New("the doctor is not accepting appointments")
	ErrForbidden         = errors.New("not allowed to access this resource")
)

// FieldError is a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every invalid field of one request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) Add(field, format string, args ...interface{}) {
	*v = append(*v, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when no field failed so callers can `return v.Err()`.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// HTTPError maps service errors to HTTP responses. Unknown errors become a
// bare 500; their text is left to the request logger.
func HTTPError(err error) error {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"message": "invalid request",
			"fields":  ve,
		})
	}

	switch {
	case errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidTimeRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPastDate),
		errors.Is(err, ErrDailyLimitReached),
		errors.Is(err, ErrDoctorInactive):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSlotConflict),
		errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
