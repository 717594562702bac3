package service

import (
	"context"
	"errors"

	"github.com/Skotchmaster/workhub/internal/events"
	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/metrics"
	"github.com/Skotchmaster/workhub/internal/models"
	"github.com/Skotchmaster/workhub/internal/repo"
)

// Refresh exchanges a refresh token for a new pair. The presented token is
// removed from its owner's list before the new one is appended; a token that
// verifies but is no longer listed is treated as stolen and every token of
// that user is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		s.countRefresh(metrics.RefreshNoCookie)
		return nil, ErrNoSession
	}

	claims, err := s.Issuer.ParseRefresh(refreshToken)
	if err != nil {
		l.Warn("refresh_failed", "reason", "invalid_token", "error", err)
		s.countRefresh(metrics.RefreshInvalid)
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.Users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("refresh_failed", "reason", "user_not_found", "user_id", claims.Subject)
			s.countRefresh(metrics.RefreshInvalid)
			return nil, ErrInvalidRefreshToken
		}
		s.countRefresh(metrics.RefreshError)
		return nil, err
	}

	removed, err := s.Tokens.RemoveRefresh(ctx, user.ID, refreshToken)
	if err != nil {
		s.countRefresh(metrics.RefreshError)
		return nil, err
	}
	if !removed {
		return nil, s.revokeAll(ctx, user)
	}

	res, err := s.issueSession(ctx, user, "")
	if err != nil {
		s.countRefresh(metrics.RefreshError)
		return nil, err
	}
	s.countRefresh(metrics.RefreshRotated)
	l.Info("refresh_successful", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) revokeAll(ctx context.Context, user *models.User) error {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	n, err := s.Tokens.ClearRefresh(ctx, user.ID)
	if err != nil {
		l.Error("refresh_reuse_revoke_failed", "user_id", user.ID, "error", err)
		s.countRefresh(metrics.RefreshError)
		return err
	}
	l.Warn("refresh_reuse_detected", "user_id", user.ID, "revoked", n)

	s.countRefresh(metrics.RefreshReuse)
	if s.Metrics != nil {
		s.Metrics.Revocations.Add(float64(n))
	}
	ev := events.New(events.RefreshReuseDetected, user.ID)
	ev.Revoked = n
	s.publish(ctx, ev)

	return ErrRefreshReuse
}

// issueSession signs a new pair and appends its refresh token to the user's
// list. method is empty for rotations.
func (s *AuthService) issueSession(ctx context.Context, user *models.User, method string) (*SessionResult, error) {
	pair, err := s.Issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.Tokens.AppendRefresh(ctx, user.ID, pair.RefreshToken, pair.RefreshJTI, pair.RefreshExp); err != nil {
		return nil, err
	}

	if method != "" {
		s.countLogin(method, "ok")
		ev := events.New(events.UserLoggedIn, user.ID)
		ev.Email = user.Email
		ev.Method = method
		s.publish(ctx, ev)
		logging.FromContext(ctx).Info("login_successful", "user_id", user.ID, "login_method", method)
	}

	return &SessionResult{User: user, Pair: pair}, nil
}

// publish is best effort; an unavailable broker must not fail auth.
func (s *AuthService) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}

func (s *AuthService) countRefresh(outcome string) {
	if s.Metrics != nil {
		s.Metrics.Refreshes.WithLabelValues(outcome).Inc()
	}
}

func (s *AuthService) countLogin(method, result string) {
	if s.Metrics != nil {
		s.Metrics.Logins.WithLabelValues(method, result).Inc()
	}
}
