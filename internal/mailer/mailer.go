package mailer

import (
	"context"
	"log/slog"
)

// Mailer delivers one-time codes. Delivery itself is outside this service.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// LogMailer writes the code to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendOTP(_ context.Context, email, code string) error {
	m.Logger.Info("otp_issued", "email", email, "code", code)
	return nil
}
