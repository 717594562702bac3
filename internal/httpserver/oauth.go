package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/oauth"
	"github.com/Skotchmaster/workhub/internal/service"
)

type OAuthHTTP struct {
	Svc       *service.AuthService
	Provider  oauth.Provider
	Cookies   CookieConfig
	ClientURL string
}

func (h *OAuthHTTP) successURL() string { return h.ClientURL + "/dashboard" }
func (h *OAuthHTTP) failureURL() string { return h.ClientURL + "/login?error=oauth" }

func (h *OAuthHTTP) Start(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "oauth_start", "provider", h.Provider.Name())

	state, err := oauth.NewState()
	if err != nil {
		l.Error("oauth_start_failed", "error", err)
		return internalError()
	}
	verifier, challenge, err := oauth.NewPKCE()
	if err != nil {
		l.Error("oauth_start_failed", "error", err)
		return internalError()
	}

	h.Cookies.setTemp(c, stateCookieName, state)
	h.Cookies.setTemp(c, pkceCookieName, verifier)
	return c.Redirect(http.StatusFound, h.Provider.AuthCodeURL(state, challenge))
}

func (h *OAuthHTTP) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "oauth_callback", "provider", h.Provider.Name())

	state := cookieValue(c, stateCookieName)
	verifier := cookieValue(c, pkceCookieName)
	h.Cookies.clearTemp(c, stateCookieName)
	h.Cookies.clearTemp(c, pkceCookieName)

	if e := c.QueryParam("error"); e != "" {
		l.Warn("oauth_failed", "reason", "provider_error", "error", e)
		return c.Redirect(http.StatusFound, h.failureURL())
	}
	if state == "" || c.QueryParam("state") != state {
		l.Warn("oauth_failed", "reason", "state_mismatch")
		return c.Redirect(http.StatusFound, h.failureURL())
	}
	code := c.QueryParam("code")
	if code == "" || verifier == "" {
		l.Warn("oauth_failed", "reason", "missing_code_or_verifier")
		return c.Redirect(http.StatusFound, h.failureURL())
	}

	identity, err := h.Provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		l.Warn("oauth_failed", "reason", "exchange", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL())
	}

	res, err := h.Svc.GoogleLogin(ctx, identity)
	if errors.Is(err, service.ErrUnverifiedIdentity) {
		l.Warn("oauth_failed", "reason", "email_not_verified")
		return c.Redirect(http.StatusFound, h.failureURL())
	}
	if err != nil {
		l.Error("oauth_failed", "reason", "session", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL())
	}

	h.Cookies.setRefresh(c, res.RefreshToken)
	return c.Redirect(http.StatusFound, h.successURL())
}
