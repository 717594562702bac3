package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Identity is what an external provider asserts about a user. Providers
// never create or link local accounts.
type Identity struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	EmailVerified  bool
}

type Provider interface {
	Name() string
	AuthCodeURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Identity, error)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func NewState() (string, error) {
	return randomToken()
}

// NewPKCE returns an S256 verifier/challenge pair.
func NewPKCE() (verifier, challenge string, err error) {
	verifier, err = randomToken()
	if err != nil {
		return "", "", err
	}
	return verifier, Challenge(verifier), nil
}

func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
