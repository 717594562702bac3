package authclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Paths whose 401 is an answer, not an expired access token.
var noRetryPaths = []string{
	"/auth/refresh",
	"/auth/login",
	"/auth/signup",
	"/auth/verify-otp",
}

// Transport attaches the session's access token and recovers from 401 by
// refreshing once and replaying the request.
type Transport struct {
	Base    http.RoundTripper
	session *Session
	coord   *coordinator
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	sent, attach := t.session.credentials()
	first, err := withToken(req, sent, attach)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || exempt(req) {
		return resp, err
	}
	drain(resp)

	token, err := t.coord.do(req.Context(), sent)
	if errors.Is(err, ErrSessionExpired) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return t.replay(req, token)
}

func (t *Transport) replay(req *http.Request, token string) (*http.Response, error) {
	retry, err := withToken(req, token, true)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(retry)
}

func exempt(req *http.Request) bool {
	path := strings.TrimSuffix(req.URL.Path, "/")
	for _, p := range noRetryPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

func withToken(req *http.Request, token string, attach bool) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("authclient: rewind body: %w", err)
		}
		out.Body = body
	}
	if attach {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out, nil
}

func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("authclient: buffer body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
