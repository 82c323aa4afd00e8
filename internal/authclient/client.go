package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"mobile-session/internal/config"
	"mobile-session/internal/envelope"
	"mobile-session/internal/metrics"
	"mobile-session/pkg/errors"
	"mobile-session/pkg/logger"
)

// User-facing failure messages
const (
	msgUnauthorized       = "Unauthorized. Please sign in again."
	msgForbidden          = "Access denied."
	msgNotFound           = "Resource not found."
	msgRateLimited        = "Too many requests. Please try again later."
	msgServiceUnavailable = "Service is temporarily unavailable. Please try again in a minute."
	msgServerError        = "Server error. Please try again."
	msgTimeout            = "Network timeout. Please try again."
	msgNoConnection       = "No internet connection. Please check your network."
	msgCancelled          = "Request was cancelled."
	msgDecoding           = "Failed to parse server response."
)

// Endpoint labels used in logs and metrics
const (
	EndpointLogin           = "login_email"
	EndpointSignup          = "signup_email"
	EndpointCallback        = "idp_callback"
	EndpointRefresh         = "refresh"
	EndpointRefreshFallback = "refresh_fallback"
	EndpointProfile         = "profile"
)

// Client talks to the backend auth API. Every failure is an *errors.AppError.
type Client struct {
	config      *config.Config
	httpClient  *http.Client
	logger      *logger.Logger
	metrics     *metrics.Metrics
	retryDelays []time.Duration
}

// NewClient creates a new backend auth client. httpClient may be nil.
func NewClient(cfg *config.Config, httpClient *http.Client, log *logger.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		config:      cfg,
		httpClient:  httpClient,
		logger:      log.Named("authclient"),
		metrics:     m,
		retryDelays: []time.Duration{400 * time.Millisecond, 800 * time.Millisecond},
	}
}

// EmailLogin posts email credentials and returns the raw reply
func (c *Client) EmailLogin(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{
		"method":   "email",
		"email":    email,
		"password": password,
	}
	return c.post(ctx, EndpointLogin, c.config.APIURL("auth", "login", "email"), body)
}

// EmailSignup creates an account. The backend requires dob and gender, which the client does not collect.
func (c *Client) EmailSignup(ctx context.Context, email, firstName, lastName, password string) (string, error) {
	body := map[string]string{
		"email":     email,
		"firstName": firstName,
		"lastName":  lastName,
		"password":  password,
		"dob":       "1990-01-01",
		"gender":    "unspecified",
	}
	return c.post(ctx, EndpointSignup, c.config.APIURL("auth", "signup", "email"), body)
}

// IdentityProviderCallback exchanges hosted-login tokens for a backend session
func (c *Client) IdentityProviderCallback(ctx context.Context, accessToken, idToken string) (string, error) {
	body := map[string]string{
		"accessToken": accessToken,
		"idToken":     idToken,
	}
	return c.post(ctx, EndpointCallback, c.config.APIURL("auth", "auth0", "callback"), body)
}

// Refresh posts the refresh token to the API and, on any failure, once to the frontend proxy.
// The two calls are sequential. When both fail the proxy's failure is returned.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh_token": refreshToken}

	resp, err := c.post(ctx, EndpointRefresh, c.config.APIURL("auth", "refresh-token"), body)
	if err == nil {
		return resp, nil
	}
	if errors.IsCancelled(err) {
		return "", err
	}

	c.logger.WithError(err).Debug("Primary refresh failed, trying fallback")
	return c.post(ctx, EndpointRefreshFallback, c.config.FrontendURL("api", "proxy", "auth", "refresh-token"), body)
}

// profilePaths are tried in order until one answers
var profilePaths = [][]string{
	{"account", "me"},
	{"users", "get", "profile"},
	{"user", "get", "profile"},
}

// FetchProfile reads the signed-in user's profile.
// A 401 from any path stops the search; otherwise the last failure is returned.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (string, error) {
	var lastErr error
	for _, p := range profilePaths {
		resp, err := c.get(ctx, EndpointProfile, c.config.APIURL(p...), accessToken)
		if err == nil {
			return resp, nil
		}
		if errors.IsUnauthorized(err) || errors.IsCancelled(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) post(ctx context.Context, endpoint, url string, body interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.NewUnknownError("Failed to encode request", err)
	}
	return c.do(ctx, endpoint, http.MethodPost, url, payload, "")
}

// get retries transport failures with backoff. Status failures are returned at once.
func (c *Client) get(ctx context.Context, endpoint, url, bearer string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			delay := c.retryDelays[attempt-1]
			c.logger.WithFields(map[string]interface{}{
				"endpoint": endpoint,
				"attempt":  attempt + 1,
				"delay":    delay.String(),
			}).Debug("Retrying GET")

			select {
			case <-ctx.Done():
				return "", errors.NewCancelledError(msgCancelled)
			case <-time.After(delay):
			}
		}

		resp, err := c.do(ctx, endpoint, http.MethodGet, url, nil, bearer)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, errors.ErrorTypeNetwork) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) do(ctx context.Context, endpoint, method, url string, payload []byte, bearer string) (string, error) {
	start := time.Now()
	requestID := uuid.New().String()

	body, err := c.roundTrip(ctx, method, url, payload, bearer, requestID)

	outcome := "success"
	if err != nil {
		outcome = string(errors.TypeOf(err))
	}
	c.metrics.ObserveBackendRequest(endpoint, outcome, time.Since(start))

	log := c.logger.WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"method":      method,
		"request_id":  requestID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		log.WithError(err).Warn("Backend request failed")
		return "", err
	}
	log.Debug("Backend request succeeded")
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, payload []byte, bearer, requestID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", errors.NewUnknownError("Failed to create request", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return "", transportError(err)
		}
		return "", errors.NewDecodingError(msgDecoding, err)
	}

	return classify(resp.StatusCode, resp.Header.Get("Content-Type"), string(raw))
}

// classify maps a completed HTTP exchange to a body or a typed failure
func classify(status int, contentType, body string) (string, error) {
	if isHTML(contentType, body) {
		return "", errors.NewServerError(status, msgServiceUnavailable)
	}

	if status >= 200 && status < 300 {
		return body, nil
	}

	serverMessage, hasMessage := envelope.ErrorMessage(body)
	pick := func(fallback string) string {
		if hasMessage {
			return serverMessage
		}
		return fallback
	}

	switch {
	case status == http.StatusUnauthorized:
		return "", errors.NewUnauthorizedError(msgUnauthorized)
	case status == http.StatusForbidden:
		return "", errors.NewServerError(status, msgForbidden)
	case status == http.StatusNotFound:
		return "", errors.NewServerError(status, msgNotFound)
	case status == http.StatusTooManyRequests:
		return "", errors.NewServerError(status, msgRateLimited)
	case status >= 502 && status <= 504:
		return "", errors.NewServerError(status, msgServiceUnavailable)
	case status >= 500:
		return "", errors.NewServerError(status, pick(msgServerError))
	default:
		return "", errors.NewServerError(status, pick(fmt.Sprintf("Request failed with status %d", status)))
	}
}

func isHTML(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func transportError(err error) *errors.AppError {
	if stderrors.Is(err, context.Canceled) {
		return errors.NewCancelledError(msgCancelled)
	}
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewNetworkError(msgTimeout, err)
	}
	return errors.NewNetworkError(msgNoConnection, err)
}
