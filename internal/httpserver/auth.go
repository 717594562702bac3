package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/service"
)

type AuthHTTP struct {
	Svc     *service.AuthService
	Cookies CookieConfig
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Signup(ctx, req.Email, req.Password)
	if err != nil {
		if he, ok := validationHTTPError(err); ok {
			l.Warn("signup_failed", "status", 400, "reason", "validation")
			return he
		}
		if errors.Is(err, service.ErrEmailTaken) {
			l.Warn("signup_failed", "status", 400, "reason", "email_taken")
			return echo.NewHTTPError(http.StatusBadRequest, "email already registered")
		}
		l.Error("signup_failed", "status", 500, "error", err)
		return internalError()
	}

	return c.JSON(http.StatusCreated, signupResponse{
		Message: "user created, check your email for the verification code",
		UserID:  user.ID,
	})
}

func (h *AuthHTTP) VerifyOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_verify_otp")

	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("verify_otp_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.VerifyOTP(ctx, req.Email, req.OTP)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOTP) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired otp")
		}
		l.Error("verify_otp_failed", "status", 500, "error", err)
		return internalError()
	}

	h.Cookies.setRefresh(c, res.RefreshToken)
	return c.JSON(http.StatusOK, newSessionResponse(res))
}

func (h *AuthHTTP) ResendOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_resend_otp")

	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ResendOTP(ctx, req.Email); err != nil {
		l.Error("resend_otp_failed", "status", 500, "error", err)
		return internalError()
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "if the account exists and is not verified, a new code was sent",
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if he, ok := validationHTTPError(err); ok {
			return he
		}
		switch {
		case errors.Is(err, service.ErrNotVerified):
			l.Warn("login_failed", "status", 401, "reason", "not_verified")
			return echo.NewHTTPError(http.StatusUnauthorized, "email not verified")
		case errors.Is(err, service.ErrInvalidCredentials):
			l.Warn("login_failed", "status", 401, "reason", "invalid_credentials")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		l.Error("login_failed", "status", 500, "error", err)
		return internalError()
	}

	h.Cookies.setRefresh(c, res.RefreshToken)
	return c.JSON(http.StatusOK, newSessionResponse(res))
}

// Refresh rotates the refresh cookie. Any failure clears the cookie.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	res, err := h.Svc.Refresh(ctx, cookieValue(c, RefreshCookieName))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSession):
			return echo.NewHTTPError(http.StatusUnauthorized, "no refresh token")
		case errors.Is(err, service.ErrRefreshReuse):
			h.Cookies.clearRefresh(c)
			l.Warn("refresh_failed", "status", 403, "reason", "reuse_detected")
			return echo.NewHTTPError(http.StatusForbidden, "refresh token reuse detected")
		case errors.Is(err, service.ErrInvalidRefreshToken):
			h.Cookies.clearRefresh(c)
			l.Warn("refresh_failed", "status", 403, "reason", "invalid_token")
			return echo.NewHTTPError(http.StatusForbidden, "invalid refresh token")
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return internalError()
	}

	h.Cookies.setRefresh(c, res.RefreshToken)
	return c.JSON(http.StatusOK, refreshResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		User:        summary(res.User),
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	err := h.Svc.Logout(ctx, cookieValue(c, RefreshCookieName))
	h.Cookies.clearRefresh(c)
	if err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refresh token", "error", err)
		return internalError()
	}

	l.Info("successful_logout")
	return c.NoContent(http.StatusNoContent)
}
