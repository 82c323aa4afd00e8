package session

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"mobile-session/pkg/errors"
)

// AuthTransport adds the session bearer token to outgoing API requests.
// On a 401 it refreshes once, shared with any concurrent refresh, and retries the request once.
type AuthTransport struct {
	Manager *Manager
	Base    http.RoundTripper
}

// NewAuthTransport wraps base (http.DefaultTransport when nil)
func NewAuthTransport(m *Manager, base http.RoundTripper) *AuthTransport {
	return &AuthTransport{Manager: m, Base: base}
}

// Client returns an *http.Client using the transport
func (t *AuthTransport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// buffer the body so the request can be replayed
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
	}

	// a refresh failure may only end the session this request was made for
	epoch, token := t.Manager.sessionToken(ctx)
	resp, err := t.base().RoundTrip(authorize(req, body, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}

	fresh, rerr := t.Manager.RefreshTokens(ctx)
	if rerr != nil {
		t.Manager.logger.WithError(rerr).Warn("Refresh after 401 failed")
		if !errors.Is(rerr, errors.ErrorTypeNetwork) && !errors.IsCancelled(rerr) {
			_, _ = t.Manager.signOutIfCurrent(ctx, epoch, "refresh_failed")
		}
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return t.base().RoundTrip(authorize(req, body, fresh))
}

func authorize(req *http.Request, body []byte, token string) *http.Request {
	r := req.Clone(req.Context())
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}
