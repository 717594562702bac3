// Package authclient is the Go SDK for the workhub auth API. It keeps a
// short-lived access token in memory and renews it from the refresh cookie.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/Skotchmaster/workhub/pkg/identitycache"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	baseURL *url.URL

	// api goes through the refreshing Transport, raw does not.
	api *http.Client
	raw *http.Client

	session *Session
	coord   *coordinator
	log     *slog.Logger
}

type options struct {
	jar     http.CookieJar
	cache   identitycache.Cache
	base    http.RoundTripper
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*options)

func WithCookieJar(j http.CookieJar) Option { return func(o *options) { o.jar = j } }

func WithIdentityCache(c identitycache.Cache) Option { return func(o *options) { o.cache = c } }

func WithTransport(rt http.RoundTripper) Option { return func(o *options) { o.base = rt } }

func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func NewClient(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("authclient: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authclient: base url %q must be absolute", baseURL)
	}

	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.jar == nil {
		if o.jar, err = cookiejar.New(nil); err != nil {
			return nil, fmt.Errorf("authclient: cookie jar: %w", err)
		}
	}
	if o.cache == nil {
		o.cache = &identitycache.Memory{}
	}
	if o.base == nil {
		o.base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	c := &Client{
		baseURL: u,
		raw:     &http.Client{Jar: o.jar, Transport: o.base, Timeout: o.timeout},
		session: newSession(o.cache),
		log:     o.logger,
	}
	c.session.boot = c.bootstrap
	c.coord = &coordinator{refresh: c.refresh, current: c.session.credentials}
	c.api = &http.Client{
		Jar:       o.jar,
		Timeout:   o.timeout,
		Transport: &Transport{Base: o.base, session: c.session, coord: c.coord},
	}

	if err := c.session.restore(ctx); err != nil {
		return nil, fmt.Errorf("authclient: restore identity: %w", err)
	}
	return c, nil
}

func (c *Client) Session() *Session { return c.session }

// HTTPClient returns a client that authenticates requests to the API and
// renews the access token on 401.
func (c *Client) HTTPClient() *http.Client { return c.api }

func (c *Client) Bootstrap(ctx context.Context) error { return c.session.Bootstrap(ctx) }

type sessionPayload struct {
	ID          string `json:"_id"`
	Email       string `json:"email"`
	IsVerified  bool   `json:"isVerified"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type refreshPayload struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
	User        User   `json:"user"`
}

type SignupResult struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

func (c *Client) Signup(ctx context.Context, email, password string) (*SignupResult, error) {
	var out SignupResult
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, c.api, http.MethodPost, "/auth/signup", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string) (*User, error) {
	var out sessionPayload
	body := map[string]string{"email": email, "otp": code}
	if err := c.call(ctx, c.api, http.MethodPost, "/auth/verify-otp", body, &out); err != nil {
		return nil, err
	}
	return c.signedIn(ctx, out)
}

func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.call(ctx, c.api, http.MethodPost, "/auth/resend-otp", map[string]string{"email": email}, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out sessionPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, c.api, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return c.signedIn(ctx, out)
}

func (c *Client) signedIn(ctx context.Context, p sessionPayload) (*User, error) {
	u := &User{ID: p.ID, Email: p.Email, IsVerified: p.IsVerified}
	c.session.setToken(p.AccessToken, p.ExpiresAt)
	if err := c.session.mergeUser(ctx, u); err != nil {
		return nil, fmt.Errorf("authclient: save identity: %w", err)
	}
	return c.session.User(), nil
}

// Refresh rotates the refresh cookie and installs a new access token. On
// failure the session is cleared. Concurrent calls share one request.
func (c *Client) Refresh(ctx context.Context) error {
	cur, _ := c.session.credentials()
	_, err := c.coord.do(ctx, cur)
	return err
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	var out refreshPayload
	if err := c.call(ctx, c.raw, http.MethodGet, "/auth/refresh", nil, &out); err != nil {
		c.log.Info("session_refresh", "status", StatusOf(err), "reason", "refresh_failed")
		if cerr := c.session.clear(ctx); cerr != nil {
			c.log.Warn("identity_clear_failed", "error", cerr)
		}
		return "", err
	}
	c.session.setToken(out.AccessToken, out.ExpiresAt)
	if err := c.session.mergeUser(ctx, &out.User); err != nil {
		c.log.Warn("identity_save_failed", "error", err)
	}
	c.log.Info("session_refresh", "status", http.StatusOK, "user_id", out.User.ID)
	return out.AccessToken, nil
}

func (c *Client) bootstrap(ctx context.Context) error {
	cur, _ := c.session.credentials()
	if _, err := c.coord.do(ctx, cur); err != nil {
		if StatusOf(err) == 0 {
			c.log.Warn("bootstrap_refresh_failed", "error", err)
		}
		return c.session.clear(ctx)
	}

	me, err := c.Me(ctx)
	if err != nil {
		c.log.Info("bootstrap_profile_failed", "status", StatusOf(err))
		return c.session.clear(ctx)
	}
	return c.session.setUser(ctx, me)
}

// Logout revokes the refresh cookie server side and forgets the session
// locally even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, c.raw, http.MethodPost, "/auth/logout", nil, nil)
	if cerr := c.session.clear(ctx); cerr != nil && err == nil {
		err = fmt.Errorf("authclient: clear identity: %w", cerr)
	}
	return err
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.call(ctx, c.api, http.MethodGet, "/api/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMe(ctx context.Context, name string) (*User, error) {
	var out User
	if err := c.call(ctx, c.api, http.MethodPatch, "/api/users/me", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	if err := c.session.setUser(ctx, &out); err != nil {
		return nil, fmt.Errorf("authclient: save identity: %w", err)
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("authclient: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("authclient: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authclient: decode response: %w", err)
	}
	return nil
}
