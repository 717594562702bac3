package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/workhub/internal/logging"
	"github.com/Skotchmaster/workhub/internal/oauth"
)

func discoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_MissingConfig(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Config{ClientID: "id"}, logging.Discard())
	require.Error(t, err)
}

func TestAuthCodeURL_CarriesStateAndPKCE(t *testing.T) {
	t.Parallel()
	srv := discoveryServer(t)

	p, err := New(context.Background(), Config{
		ClientID:     "client-id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		Issuer:       srv.URL,
	}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	var _ oauth.Provider = p

	verifier, challenge, err := oauth.NewPKCE()
	require.NoError(t, err)
	require.Equal(t, oauth.Challenge(verifier), challenge)

	u, err := url.Parse(p.AuthCodeURL("state-123", challenge))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, srv.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, challenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "openid")
}

// fakeGoogle serves discovery, JWKS and a token endpoint that only accepts
// a verifier matching the challenge sent to the consent URL.
type fakeGoogle struct {
	srv       *httptest.Server
	key       *rsa.PrivateKey
	challenge string
}

func newFakeGoogle(t *testing.T, emailVerified bool) *fakeGoogle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeGoogle{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                                f.srv.URL,
			"authorization_endpoint":                f.srv.URL + "/auth",
			"token_endpoint":                        f.srv.URL + "/token",
			"jwks_uri":                              f.srv.URL + "/certs",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/certs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"keys": []map[string]string{{
			"kty": "RSA", "kid": "k1", "alg": "RS256", "use": "sig",
			"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if oauth.Challenge(r.PostForm.Get("code_verifier")) != f.challenge {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		now := time.Now()
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":            f.srv.URL,
			"aud":            "client-id",
			"sub":            "google-sub-1",
			"email":          "g@example.com",
			"email_verified": emailVerified,
			"name":           "Gee",
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
		})
		tok.Header["kid"] = "k1"
		idToken, err := tok.SignedString(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"access_token": "at", "token_type": "Bearer", "expires_in": 3600, "id_token": idToken,
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestExchangeCode_VerifierMatchesChallenge(t *testing.T) {
	t.Parallel()
	f := newFakeGoogle(t, true)
	ctx := context.Background()

	p, err := New(ctx, Config{
		ClientID:     "client-id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		Issuer:       f.srv.URL,
	}, logging.Discard())
	require.NoError(t, err)

	verifier, challenge, err := oauth.NewPKCE()
	require.NoError(t, err)
	u, err := url.Parse(p.AuthCodeURL("st", challenge))
	require.NoError(t, err)
	f.challenge = u.Query().Get("code_challenge")

	id, err := p.ExchangeCode(ctx, "code-1", verifier)
	require.NoError(t, err)
	assert.Equal(t, "google-sub-1", id.ProviderUserID)
	assert.Equal(t, "g@example.com", id.Email)
	assert.True(t, id.EmailVerified)

	_, err = p.ExchangeCode(ctx, "code-1", "some-other-verifier")
	assert.Error(t, err)
}
