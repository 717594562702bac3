package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/tokens"
)

type AccessParser interface {
	ParseAccess(token string) (*tokens.AccessClaims, error)
}

type BearerAuth struct {
	Tokens AccessParser
}

func NewBearerAuth(p AccessParser) *BearerAuth {
	return &BearerAuth{Tokens: p}
}

// RequireAuth rejects requests without a valid access token and stores the
// token subject under "user_id".
func (m *BearerAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("mw", "require_auth")

		raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := m.Tokens.ParseAccess(raw)
		if err != nil {
			l.Debug("access_token_rejected", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		c.Set(userIDKey, claims.Subject)
		return next(c)
	}
}
