package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	RefreshCookieName = "jwt"

	stateCookieName = "__oauth_state"
	pkceCookieName  = "__oauth_pkce"
	oauthCookieTTL  = 5 * time.Minute
)

type CookieConfig struct {
	// Secure is false only in development.
	Secure     bool
	RefreshTTL time.Duration
}

func (cc CookieConfig) setRefresh(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cc.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (cc CookieConfig) clearRefresh(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// OAuth round-trip cookies are Lax: they must survive the top-level
// redirect back from the provider.
func (cc CookieConfig) setTemp(c echo.Context, name, value string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/google",
		MaxAge:   int(oauthCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (cc CookieConfig) clearTemp(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
