package tokens

import (
	"bytes"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Issuer signs access and refresh credentials with two distinct HS256 keys.
// It keeps no state besides its keys and never touches storage.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type Option func(*Issuer)

func WithTTL(access, refresh time.Duration) Option {
	return func(i *Issuer) {
		if access > 0 {
			i.accessTTL = access
		}
		if refresh > 0 {
			i.refreshTTL = refresh
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// Pair is the result of Issue. ExpiresAt is the access expiry in epoch
// milliseconds, ready to be sent to clients.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	AccessExp    time.Time
	RefreshExp   time.Time
	RefreshJTI   string
}

func NewIssuer(accessSecret, refreshSecret []byte, opts ...Option) (*Issuer, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrConfig)
	}
	if bytes.Equal(accessSecret, refreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	i := &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) Issue(userID string) (Pair, error) {
	if userID == "" {
		return Pair{}, ErrMissingSubject
	}
	now := i.now()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	access, err := i.createAccessToken(userID, now, accessExp)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	jti := uuid.NewString()
	refresh, err := i.createRefreshToken(userID, jti, now, refreshExp)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExp.UnixMilli(),
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		RefreshJTI:   jti,
	}, nil
}

func (i *Issuer) createAccessToken(userID string, now, exp time.Time) (string, error) {
	claims := AccessClaims{
		Type: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

func (i *Issuer) createRefreshToken(userID, jti string, now, exp time.Time) (string, error) {
	claims := RefreshClaims{
		Type: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
}

func (i *Issuer) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
}

// ParseAccess verifies an access token. Errors wrap ErrInvalidToken and,
// when applicable, the underlying jwt error (e.g. jwt.ErrTokenExpired).
func (i *Issuer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return i.accessSecret, nil
	}, i.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typeAccess {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrWrongType)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingSubject)
	}
	return &claims, nil
}

func (i *Issuer) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return i.refreshSecret, nil
	}, i.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typeRefresh {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrWrongType)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingSubject)
	}
	return &claims, nil
}
