package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Skotchmaster/workhub/internal/hash"
)

const (
	CodeLength = 6
	DefaultTTL = 10 * time.Minute
)

var (
	ErrNotFound = errors.New("otp not found or expired")
	ErrMismatch = errors.New("otp mismatch")
)

// Store keeps one pending code per email. Put replaces any previous code.
type Store interface {
	Put(ctx context.Context, email, codeHash string, ttl time.Duration) error
	Get(ctx context.Context, email string) (string, error)
	Delete(ctx context.Context, email string) error
}

func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Issue generates a fresh code, stores its hash and returns the plaintext
// code for delivery.
func Issue(ctx context.Context, s Store, email string) (string, error) {
	code, err := Generate()
	if err != nil {
		return "", err
	}
	h, err := hash.HashPassword(code)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	if err := s.Put(ctx, email, h, DefaultTTL); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify checks code against the stored hash and consumes it on success.
func Verify(ctx context.Context, s Store, email, code string) error {
	h, err := s.Get(ctx, email)
	if err != nil {
		return err
	}
	if !hash.CheckPassword(h, code) {
		return ErrMismatch
	}
	return s.Delete(ctx, email)
}
