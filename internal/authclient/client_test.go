package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobile-session/internal/config"
	"mobile-session/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg, err := config.ForEndpoints(server.URL, server.URL)
	require.NoError(t, err)

	client := NewClient(cfg, server.Client(), nil, nil)
	client.retryDelays = nil
	return client, server
}

func TestClient_EmailLogin(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/auth/login/email", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"a.b.c"}`))
	}))

	body, err := client.EmailLogin(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"a.b.c"}`, body)
	assert.Equal(t, map[string]string{"method": "email", "email": "a@b.c", "password": "pw"}, got)
}

func TestClient_EmailSignup_PlaceholderFields(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/signup/email", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))

	_, err := client.EmailSignup(context.Background(), "a@b.c", "Ann", "Lee", "pw")
	require.NoError(t, err)
	assert.Equal(t, "1990-01-01", got["dob"])
	assert.Equal(t, "unspecified", got["gender"])
	assert.Equal(t, "Ann", got["firstName"])
	assert.Equal(t, "Lee", got["lastName"])
}

func TestClient_IdentityProviderCallback(t *testing.T) {
	var got map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/auth0/callback", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	}))

	_, err := client.IdentityProviderCallback(context.Background(), "idp-access", "idp-id")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"accessToken": "idp-access", "idToken": "idp-id"}, got)
}

func TestClient_Refresh(t *testing.T) {
	tests := []struct {
		name          string
		primaryStatus int
		proxyStatus   int
		expectBody    string
		expectProxy   int32
		expectType    errors.ErrorType
	}{
		{
			name:          "primary succeeds, no fallback",
			primaryStatus: http.StatusOK,
			expectBody:    "primary",
			expectProxy:   0,
		},
		{
			name:          "primary fails, fallback succeeds",
			primaryStatus: http.StatusBadGateway,
			proxyStatus:   http.StatusOK,
			expectBody:    "proxy",
			expectProxy:   1,
		},
		{
			name:          "both fail, fallback error returned",
			primaryStatus: http.StatusInternalServerError,
			proxyStatus:   http.StatusUnauthorized,
			expectProxy:   1,
			expectType:    errors.ErrorTypeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var primaryCalls, proxyCalls int32
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&primaryCalls, 1)
				var body map[string]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "r1", body["refresh_token"])
				w.WriteHeader(tt.primaryStatus)
				w.Write([]byte("primary"))
			})
			mux.HandleFunc("/api/proxy/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&proxyCalls, 1)
				w.WriteHeader(tt.proxyStatus)
				w.Write([]byte("proxy"))
			})
			client, _ := newTestClient(t, mux)

			body, err := client.Refresh(context.Background(), "r1")

			assert.Equal(t, int32(1), atomic.LoadInt32(&primaryCalls))
			assert.Equal(t, tt.expectProxy, atomic.LoadInt32(&proxyCalls))
			if tt.expectType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectType, errors.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectBody, body)
		})
	}
}

func TestClient_FetchProfile(t *testing.T) {
	tests := []struct {
		name       string
		statuses   map[string]int
		expectHits []string
		expectType errors.ErrorType
		expectBody string
	}{
		{
			name:       "first path succeeds",
			statuses:   map[string]int{"/v1/account/me": 200},
			expectHits: []string{"/v1/account/me"},
			expectBody: "/v1/account/me",
		},
		{
			name:       "falls through to last path",
			statuses:   map[string]int{"/v1/account/me": 404, "/v1/users/get/profile": 500, "/v1/user/get/profile": 200},
			expectHits: []string{"/v1/account/me", "/v1/users/get/profile", "/v1/user/get/profile"},
			expectBody: "/v1/user/get/profile",
		},
		{
			name:       "401 short-circuits",
			statuses:   map[string]int{"/v1/account/me": 404, "/v1/users/get/profile": 401},
			expectHits: []string{"/v1/account/me", "/v1/users/get/profile"},
			expectType: errors.ErrorTypeUnauthorized,
		},
		{
			name:       "all fail returns last failure",
			statuses:   map[string]int{"/v1/account/me": 404, "/v1/users/get/profile": 404, "/v1/user/get/profile": 503},
			expectHits: []string{"/v1/account/me", "/v1/users/get/profile", "/v1/user/get/profile"},
			expectType: errors.ErrorTypeServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var hits []string
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				hits = append(hits, r.URL.Path)
				mu.Unlock()
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				status, ok := tt.statuses[r.URL.Path]
				if !ok {
					status = http.StatusNotFound
				}
				w.WriteHeader(status)
				w.Write([]byte(r.URL.Path))
			}))

			body, err := client.FetchProfile(context.Background(), "tok")

			mu.Lock()
			assert.Equal(t, tt.expectHits, hits)
			mu.Unlock()
			if tt.expectType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectType, errors.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectBody, body)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		expectType  errors.ErrorType
		expectMsg   string
	}{
		{"ok", 200, "application/json", `{}`, "", ""},
		{"html content type", 200, "text/html; charset=utf-8", "<p>sleeping</p>", errors.ErrorTypeServer, msgServiceUnavailable},
		{"html body", 500, "", "<!DOCTYPE html><html></html>", errors.ErrorTypeServer, msgServiceUnavailable},
		{"unauthorized", 401, "application/json", `{"message":"expired"}`, errors.ErrorTypeUnauthorized, msgUnauthorized},
		{"bad request with message", 400, "application/json", `{"message":"Invalid credentials"}`, errors.ErrorTypeServer, "Invalid credentials"},
		{"bad request without message", 422, "application/json", `{}`, errors.ErrorTypeServer, "Request failed with status 422"},
		{"server error message", 500, "application/json", `{"errors":["db down"]}`, errors.ErrorTypeServer, "db down"},
		{"gateway", 503, "application/json", `{"message":"x"}`, errors.ErrorTypeServer, msgServiceUnavailable},
		{"rate limited", 429, "", "", errors.ErrorTypeServer, msgRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := classify(tt.status, tt.contentType, tt.body)
			if tt.expectType == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.body, body)
				return
			}
			appErr := errors.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.expectType, appErr.Type)
			assert.Equal(t, tt.expectMsg, appErr.Message)
			assert.Equal(t, tt.status, appErr.StatusCode)
		})
	}
}

func TestClient_TransportFailures(t *testing.T) {
	t.Run("network failure", func(t *testing.T) {
		client, server := newTestClient(t, http.NotFoundHandler())
		server.Close()

		_, err := client.EmailLogin(context.Background(), "a@b.c", "pw")
		assert.Equal(t, errors.ErrorTypeNetwork, errors.TypeOf(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.EmailLogin(ctx, "a@b.c", "pw")
		assert.Equal(t, errors.ErrorTypeCancelled, errors.TypeOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer close(release)
		client.config.RequestTimeout = 50 * time.Millisecond

		_, err := client.EmailLogin(context.Background(), "a@b.c", "pw")
		appErr := errors.As(err)
		require.NotNil(t, appErr)
		assert.Equal(t, errors.ErrorTypeNetwork, appErr.Type)
		assert.Equal(t, msgTimeout, appErr.Message)
	})

	t.Run("cancelled refresh skips fallback", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Refresh(ctx, "r1")
		assert.True(t, errors.IsCancelled(err))
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})
}

func TestClient_GetRetriesTransportFailures(t *testing.T) {
	client, server := newTestClient(t, http.NotFoundHandler())
	client.retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	server.Close()

	_, err := client.FetchProfile(context.Background(), "tok")
	assert.Equal(t, errors.ErrorTypeNetwork, errors.TypeOf(err))
}
