package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/workhub/internal/logging"
	authmw "github.com/Skotchmaster/workhub/internal/middleware/auth"
	"github.com/Skotchmaster/workhub/internal/service"
)

type ProfileHTTP struct {
	Svc *service.AuthService
}

func (h *ProfileHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := h.Svc.Profile(ctx, authmw.UserID(c))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "user no longer exists")
		}
		logging.FromContext(ctx).Error("profile_failed", "status", 500, "error", err)
		return internalError()
	}
	return c.JSON(http.StatusOK, user)
}

func (h *ProfileHTTP) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "profile_update")

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.UpdateProfile(ctx, authmw.UserID(c), req.Name)
	if err != nil {
		if he, ok := validationHTTPError(err); ok {
			return he
		}
		if errors.Is(err, service.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "user no longer exists")
		}
		l.Error("profile_update_failed", "status", 500, "error", err)
		return internalError()
	}
	return c.JSON(http.StatusOK, user)
}
