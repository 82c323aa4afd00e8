// Package idp drives the interactive hosted-login step that yields identity-provider tokens.
package idp

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"mobile-session/internal/config"
	"mobile-session/internal/domain"
	"mobile-session/pkg/errors"
	"mobile-session/pkg/logger"
)

// Social connections understood by the hosted login page
const (
	ConnectionGoogle = "google-oauth2"
	ConnectionApple  = "apple"
)

// ErrUserCancelled is returned by a Prompt when the user closed the login page
var ErrUserCancelled = stderrors.New("user cancelled login")

// Authenticator runs one interactive login. Cancellation is reported as an
// errors.ErrorTypeCancelled error and never as credentials.
type Authenticator interface {
	Authenticate(ctx context.Context) (domain.IdentityCredentials, error)
}

// Prompt shows authURL to the user and returns the redirect URL the browser landed on
type Prompt func(ctx context.Context, authURL string) (redirectURL string, err error)

// OAuth2Authenticator performs the authorization-code flow with PKCE
type OAuth2Authenticator struct {
	oauth      *oauth2.Config
	audience   string
	connection string
	prompt     Prompt
	logger     *logger.Logger
}

// NewOAuth2Authenticator builds an authenticator for the configured tenant
func NewOAuth2Authenticator(cfg config.IdentityProviderConfig, prompt Prompt, log *logger.Logger) *OAuth2Authenticator {
	if log == nil {
		log = logger.NewNop()
	}
	base := tenantURL(cfg.Domain)
	return &OAuth2Authenticator{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		audience: cfg.Audience,
		prompt:   prompt,
		logger:   log.Named("idp"),
	}
}

// WithConnection returns a copy that skips the provider picker and goes straight to connection
func (a *OAuth2Authenticator) WithConnection(connection string) *OAuth2Authenticator {
	clone := *a
	clone.connection = connection
	return &clone
}

// Authenticate implements Authenticator
func (a *OAuth2Authenticator) Authenticate(ctx context.Context) (domain.IdentityCredentials, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	authURL := a.oauth.AuthCodeURL(state, a.authParams(verifier)...)

	a.logger.WithField("connection", a.connection).Debug("Starting hosted login")
	redirect, err := a.prompt(ctx, authURL)
	if err != nil {
		if stderrors.Is(err, ErrUserCancelled) || stderrors.Is(err, context.Canceled) || errors.IsCancelled(err) {
			return domain.IdentityCredentials{}, errors.NewCancelledError("Login cancelled")
		}
		return domain.IdentityCredentials{}, errors.NewUnknownError("Login page failed", err)
	}

	code, err := parseRedirect(redirect, state)
	if err != nil {
		return domain.IdentityCredentials{}, err
	}

	if ctx.Err() != nil {
		return domain.IdentityCredentials{}, errors.NewCancelledError("Login cancelled")
	}

	tok, err := a.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return domain.IdentityCredentials{}, errors.NewServerError(status, retrieveErr.ErrorDescription)
		}
		if stderrors.Is(err, context.Canceled) {
			return domain.IdentityCredentials{}, errors.NewCancelledError("Login cancelled")
		}
		return domain.IdentityCredentials{}, errors.NewNetworkError("Failed to exchange authorization code", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if tok.AccessToken == "" || idToken == "" {
		return domain.IdentityCredentials{}, errors.NewDecodingError("Login response is missing tokens", nil)
	}

	a.logger.WithField("access_token", logger.TokenPrefix(tok.AccessToken)).Debug("Hosted login completed")
	return domain.IdentityCredentials{AccessToken: tok.AccessToken, IDToken: idToken}, nil
}

func (a *OAuth2Authenticator) authParams(verifier string) []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if a.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", a.audience))
	}
	if a.connection != "" {
		opts = append(opts, oauth2.SetAuthURLParam("connection", a.connection))
	}
	return opts
}

// parseRedirect pulls the code out of the callback URL after checking state
func parseRedirect(redirect, state string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(redirect))
	if err != nil {
		return "", errors.NewDecodingError("Invalid login redirect", err)
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return "", errors.NewCancelledError("Login cancelled")
		}
		msg := q.Get("error_description")
		if msg == "" {
			msg = e
		}
		return "", errors.NewServerError(0, msg)
	}
	if q.Get("state") != state {
		return "", errors.NewInvalidTokenError("Login state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.NewDecodingError("Login redirect has no code", nil)
	}
	return code, nil
}

func tenantURL(domain string) string {
	d := strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		return d
	}
	return fmt.Sprintf("https://%s", d)
}
