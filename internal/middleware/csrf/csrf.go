package csrf

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// OriginGuard protects cookie-authenticated endpoints from cross-site
// requests. A request that names an Origin (or, failing that, a Referer)
// must come from the server itself or from one of allowed. Requests
// without either header are let through: browsers always send Origin on
// cross-site fetches, and non-browser clients carry no ambient cookies.
func OriginGuard(allowed []string) echo.MiddlewareFunc {
	hosts := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if h := hostOf(a); h != "" {
			hosts[strings.ToLower(h)] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" {
				origin = req.Header.Get("Referer")
			}
			if origin == "" {
				return next(c)
			}

			u, err := url.Parse(origin)
			if err != nil || u.Host == "" {
				return echo.NewHTTPError(http.StatusForbidden, "invalid origin")
			}
			if sameOrigin(u, req) {
				return next(c)
			}
			if _, ok := hosts[strings.ToLower(u.Host)]; ok {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "invalid origin")
		}
	}
}

// hostOf accepts either a bare host[:port] or a full URL.
func hostOf(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.Contains(v, "://") {
		u, err := url.Parse(v)
		if err != nil {
			return ""
		}
		return u.Host
	}
	return v
}

func sameOrigin(u *url.URL, r *http.Request) bool {
	return strings.EqualFold(u.Scheme, schemeOf(r)) && strings.EqualFold(u.Host, r.Host)
}

func schemeOf(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
