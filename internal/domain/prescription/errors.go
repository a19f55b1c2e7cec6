package prescription

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/domain/scheduling"
)

var ErrNotPrescribable = errors.New("prescriptions can only be written for confirmed or completed appointments")

func httpError(err error) error {
	if errors.Is(err, ErrNotPrescribable) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return scheduling.HTTPError(err)
}
