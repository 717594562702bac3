package events

import (
	"context"
	"errors"
	"time"
)

const (
	UserRegistered       = "user_registered"
	UserVerified         = "user_verified"
	UserLoggedIn         = "user_logged_in"
	UserLoggedOut        = "user_logged_out"
	RefreshReuseDetected = "refresh_reuse_detected"
)

// Event is the payload written to the auth event stream and the audit index.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Method     string    `json:"method,omitempty"`
	Revoked    int64     `json:"revoked,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(typ, userID string) Event {
	return Event{Type: typ, UserID: userID, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
