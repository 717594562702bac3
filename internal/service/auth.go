package service

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/workhub/internal/events"
	"github.com/Skotchmaster/workhub/internal/hash"
	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/mailer"
	"github.com/Skotchmaster/workhub/internal/metrics"
	"github.com/Skotchmaster/workhub/internal/models"
	"github.com/Skotchmaster/workhub/internal/oauth"
	"github.com/Skotchmaster/workhub/internal/otp"
	"github.com/Skotchmaster/workhub/internal/repo"
	"github.com/Skotchmaster/workhub/internal/tokens"
)

const publishTimeout = 2 * time.Second

type UserStore interface {
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
	UpdateName(ctx context.Context, id, name string) (*models.User, error)
	ResolveGoogleUser(ctx context.Context, googleID, email, name string, emailVerified bool) (*models.User, error)
}

// RefreshStore is the per-user list of refresh tokens that may still be
// exchanged for a new pair.
type RefreshStore interface {
	AppendRefresh(ctx context.Context, userID, token, jti string, expiresAt time.Time) error
	RemoveRefresh(ctx context.Context, userID, token string) (bool, error)
	RemoveRefreshToken(ctx context.Context, token string) (bool, error)
	ClearRefresh(ctx context.Context, userID string) (int64, error)
}

type AuthService struct {
	Users   UserStore
	Tokens  RefreshStore
	Issuer  *tokens.Issuer
	OTP     otp.Store
	Mailer  mailer.Mailer
	Events  events.Publisher
	Metrics *metrics.Metrics
}

// SessionResult is returned by every operation that issues a session.
type SessionResult struct {
	User *models.User
	tokens.Pair
}

func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	if err := validateSignup(email, password); err != nil {
		return nil, err
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("signup_error", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{Email: email, PasswordHash: pwHash}
	if err := s.Users.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("signup_failed", "reason", "user_exists")
			return nil, ErrEmailTaken
		}
		l.Error("signup_error", "reason", "db_error", "error", err)
		return nil, err
	}

	if err := s.sendOTP(ctx, user.Email); err != nil {
		l.Error("signup_error", "reason", "otp_not_sent", "user_id", user.ID, "error", err)
		return nil, err
	}

	ev := events.New(events.UserRegistered, user.ID)
	ev.Email = user.Email
	s.publish(ctx, ev)

	l.Info("signup_successful", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_otp")

	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, err
	}

	if err := otp.Verify(ctx, s.OTP, user.Email, code); err != nil {
		if errors.Is(err, otp.ErrNotFound) || errors.Is(err, otp.ErrMismatch) {
			l.Warn("verify_otp_failed", "user_id", user.ID, "reason", err.Error())
			return nil, ErrInvalidOTP
		}
		return nil, err
	}

	if err := s.Users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true
	s.publish(ctx, events.New(events.UserVerified, user.ID))

	return s.issueSession(ctx, user, "otp")
}

// ResendOTP never reports whether the email is registered.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.resend_otp")

	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.IsVerified {
		return nil
	}
	if err := s.sendOTP(ctx, user.Email); err != nil {
		l.Error("resend_otp_error", "user_id", user.ID, "error", err)
		return err
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if err := validateLogin(email, password); err != nil {
		return nil, err
	}

	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			s.countLogin("password", "rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasPassword() || !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "user_id", user.ID, "reason", "invalid_credentials")
		s.countLogin("password", "rejected")
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		l.Warn("login_failed", "user_id", user.ID, "reason", "not_verified")
		s.countLogin("password", "rejected")
		return nil, ErrNotVerified
	}

	return s.issueSession(ctx, user, "password")
}

// GoogleLogin maps a verified Google identity onto a local user and issues
// a session for it.
func (s *AuthService) GoogleLogin(ctx context.Context, id *oauth.Identity) (*SessionResult, error) {
	user, err := s.Users.ResolveGoogleUser(ctx, id.ProviderUserID, id.Email, id.Name, id.EmailVerified)
	if errors.Is(err, repo.ErrUnverifiedEmail) {
		s.countLogin("google", "rejected")
		return nil, ErrUnverifiedIdentity
	}
	if err != nil {
		s.countLogin("google", "error")
		return nil, err
	}
	return s.issueSession(ctx, user, "google")
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	removed, err := s.Tokens.RemoveRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if removed {
		if claims, err := s.Issuer.ParseRefresh(refreshToken); err == nil {
			s.publish(ctx, events.New(events.UserLoggedOut, claims.Subject))
		}
	}
	return nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.Users.GetUserByID(ctx, userID)
	if errors.Is(err, repo.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID, name string) (*models.User, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.UpdateName(ctx, userID, name)
	if errors.Is(err, repo.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *AuthService) sendOTP(ctx context.Context, email string) error {
	code, err := otp.Issue(ctx, s.OTP, email)
	if err != nil {
		return err
	}
	return s.Mailer.SendOTP(ctx, email, code)
}
