package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, opts ...Option) *Issuer {
	t.Helper()
	iss, err := NewIssuer([]byte("test-jwt-secret"), []byte("test-refresh-secret"), opts...)
	require.NoError(t, err)
	return iss
}

func TestNewIssuer_RejectsMisconfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		access  []byte
		refresh []byte
	}{
		{name: "empty access", access: nil, refresh: []byte("r")},
		{name: "empty refresh", access: []byte("a"), refresh: nil},
		{name: "same secret", access: []byte("same"), refresh: []byte("same")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewIssuer(tt.access, tt.refresh)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestIssuer_Issue_SetsExpectedClaims(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	iss := newTestIssuer(t, WithClock(func() time.Time { return now }))
	userID := uuid.NewString()

	pair, err := iss.Issue(userID)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	assert.Equal(t, now.Add(30*time.Minute).UnixMilli(), pair.ExpiresAt)
	assert.WithinDuration(t, now.Add(7*24*time.Hour), pair.RefreshExp, time.Second)

	access, err := iss.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, access.Subject)
	assert.Equal(t, "access", access.Type)

	refresh, err := iss.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, userID, refresh.Subject)
	assert.Equal(t, pair.RefreshJTI, refresh.ID)
	assert.Equal(t, "refresh", refresh.Type)
}

func TestIssuer_Issue_RefreshTokensAreUnique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	iss := newTestIssuer(t, WithClock(func() time.Time { return now }))

	a, err := iss.Issue("u1")
	require.NoError(t, err)
	b, err := iss.Issue("u1")
	require.NoError(t, err)

	assert.NotEqual(t, a.RefreshToken, b.RefreshToken)
}

func TestIssuer_Issue_EmptySubject(t *testing.T) {
	t.Parallel()

	_, err := newTestIssuer(t).Issue("")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestIssuer_TokensAreNotInterchangeable(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t)
	pair, err := iss.Issue("u1")
	require.NoError(t, err)

	_, err = iss.ParseAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.ParseRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_ParseAccess_Expired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-time.Hour)
	past := newTestIssuer(t, WithClock(func() time.Time { return issuedAt }))
	pair, err := past.Issue("u1")
	require.NoError(t, err)

	_, err = newTestIssuer(t).ParseAccess(pair.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestIssuer_ParseRefresh_WrongSecret(t *testing.T) {
	t.Parallel()

	other, err := NewIssuer([]byte("other-access"), []byte("other-refresh"))
	require.NoError(t, err)
	pair, err := other.Issue("u1")
	require.NoError(t, err)

	_, err = newTestIssuer(t).ParseRefresh(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_ParseRefresh_RejectsNoneAlg(t *testing.T) {
	t.Parallel()

	claims := RefreshClaims{
		Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestIssuer(t).ParseRefresh(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
