package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/workhub/internal/oauth"
)

type fakeProvider struct {
	gotVerifier string
	identity    *oauth.Identity
	err         error
}

func (f *fakeProvider) Name() string { return "google" }

func (f *fakeProvider) AuthCodeURL(state, challenge string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state) + "&code_challenge=" + url.QueryEscape(challenge)
}

func (f *fakeProvider) ExchangeCode(_ context.Context, _ string, verifier string) (*oauth.Identity, error) {
	f.gotVerifier = verifier
	return f.identity, f.err
}

func newOAuthHTTP(t *testing.T, p *fakeProvider) (*OAuthHTTP, *testServer) {
	t.Helper()
	s := newTestServer(t, true)
	return &OAuthHTTP{
		Svc:       s.svc,
		Provider:  p,
		Cookies:   CookieConfig{Secure: true, RefreshTTL: s.svc.Issuer.RefreshTTL()},
		ClientURL: "http://localhost:5173",
	}, s
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestOAuth_StartSetsStateAndPKCE(t *testing.T) {
	t.Parallel()
	h, _ := newOAuthHTTP(t, &fakeProvider{})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/google", nil), rec)
	require.NoError(t, h.Start(c))

	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := cookiesByName(rec)
	require.Contains(t, cookies, stateCookieName)
	require.Contains(t, cookies, pkceCookieName)

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, cookies[stateCookieName].Value, loc.Query().Get("state"))
	assert.Equal(t, oauth.Challenge(cookies[pkceCookieName].Value), loc.Query().Get("code_challenge"))
}

func callback(t *testing.T, h *OAuthHTTP, query, state, verifier string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: stateCookieName, Value: state})
	}
	if verifier != "" {
		req.AddCookie(&http.Cookie{Name: pkceCookieName, Value: verifier})
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h.Callback(echo.New().NewContext(req, rec)))
	return rec
}

func TestOAuth_CallbackSuccess(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{identity: &oauth.Identity{
		Provider: "google", ProviderUserID: "g-1", Email: "oauth@example.com", EmailVerified: true,
	}}
	h, s := newOAuthHTTP(t, p)

	rec := callback(t, h, "state=abc&code=xyz", "abc", "verifier-1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:5173/dashboard", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "verifier-1", p.gotVerifier)

	cookie := cookiesByName(rec)[RefreshCookieName]
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	user, err := s.repo.GetUserByEmail(context.Background(), "oauth@example.com")
	require.NoError(t, err)
	has, err := s.repo.HasRefresh(context.Background(), user.ID, cookie.Value)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestOAuth_CallbackFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		state    string
		verifier string
		identity *oauth.Identity
		err      error
	}{
		{name: "provider error", query: "error=access_denied&state=abc", state: "abc", verifier: "v"},
		{name: "state mismatch", query: "state=other&code=x", state: "abc", verifier: "v"},
		{name: "missing state cookie", query: "state=abc&code=x", verifier: "v"},
		{name: "missing code", query: "state=abc", state: "abc", verifier: "v"},
		{name: "exchange fails", query: "state=abc&code=x", state: "abc", verifier: "v", err: errors.New("boom")},
		{name: "unverified email", query: "state=abc&code=x", state: "abc", verifier: "v", identity: &oauth.Identity{
			Provider: "google", ProviderUserID: "g-9", Email: "unverified@example.com",
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _ := newOAuthHTTP(t, &fakeProvider{identity: tt.identity, err: tt.err})
			rec := callback(t, h, tt.query, tt.state, tt.verifier)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "http://localhost:5173/login?error=oauth", rec.Header().Get(echo.HeaderLocation))
			assert.NotContains(t, cookiesByName(rec), RefreshCookieName)
		})
	}
}
