package authclient

import (
	"context"
	"sync"
	"time"

	"github.com/Skotchmaster/workhub/pkg/identitycache"
)

type User = identitycache.Identity

type bootState int

const (
	bootNotStarted bootState = iota
	bootInFlight
	bootDone
)

// Session is the client's view of the signed-in user. The access token is
// kept in memory only; the profile is mirrored to the identity cache.
type Session struct {
	mu        sync.RWMutex
	user      *User
	token     string
	expiresAt int64

	cache identitycache.Cache

	bootMu  sync.Mutex
	state   bootState
	ready   chan struct{}
	bootErr error
	boot    func(ctx context.Context) error
}

func newSession(cache identitycache.Cache) *Session {
	return &Session{cache: cache, ready: make(chan struct{})}
}

// Bootstrap restores the session from the refresh cookie. It runs once;
// later and concurrent callers get the first run's result.
func (s *Session) Bootstrap(ctx context.Context) error {
	s.bootMu.Lock()
	switch s.state {
	case bootDone:
		s.bootMu.Unlock()
		return s.bootErr
	case bootInFlight:
		s.bootMu.Unlock()
		select {
		case <-s.ready:
			return s.bootErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.state = bootInFlight
	s.bootMu.Unlock()

	err := s.boot(context.WithoutCancel(ctx))

	s.bootMu.Lock()
	s.bootErr = err
	s.state = bootDone
	close(s.ready)
	s.bootMu.Unlock()
	return err
}

// Loading reports whether Bootstrap has not finished yet.
func (s *Session) Loading() bool {
	s.bootMu.Lock()
	defer s.bootMu.Unlock()
	return s.state != bootDone
}

// Ready is closed when Bootstrap finishes.
func (s *Session) Ready() <-chan struct{} { return s.ready }

func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt is the access token expiry in epoch milliseconds.
func (s *Session) ExpiresAt() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) Expired(now time.Time) bool {
	exp := s.ExpiresAt()
	return exp == 0 || now.UnixMilli() >= exp
}

// credentials returns what the transport should attach.
func (s *Session) credentials() (token string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.token == "" {
		return "", false
	}
	return s.token, true
}

func (s *Session) restore(ctx context.Context) error {
	u, err := s.cache.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return nil
}

func (s *Session) setToken(token string, expiresAt int64) {
	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

func (s *Session) setUser(ctx context.Context, u *User) error {
	cp := *u
	s.mu.Lock()
	s.user = &cp
	s.mu.Unlock()
	return s.cache.Save(ctx, &cp)
}

// mergeUser keeps the cached name when the server only sent a summary.
func (s *Session) mergeUser(ctx context.Context, u *User) error {
	s.mu.RLock()
	if s.user != nil && s.user.ID == u.ID && u.Name == "" {
		merged := *u
		merged.Name = s.user.Name
		u = &merged
	}
	s.mu.RUnlock()
	return s.setUser(ctx, u)
}

func (s *Session) clear(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.expiresAt = 0
	s.mu.Unlock()
	return s.cache.Clear(ctx)
}
