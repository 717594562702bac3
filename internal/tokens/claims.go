package tokens

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var (
	ErrConfig         = errors.New("tokens: invalid config")
	ErrInvalidToken   = errors.New("tokens: invalid token")
	ErrWrongType      = errors.New("tokens: wrong token type")
	ErrMissingSubject = errors.New("tokens: missing subject")
)

type AccessClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}
