package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
