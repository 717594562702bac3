package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/workhub/internal/service"
)

func validationHTTPError(err error) (*echo.HTTPError, bool) {
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		return nil, false
	}
	return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
		"message": "invalid body",
		"fields":  verr.Fields,
	}), true
}

func internalError() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
