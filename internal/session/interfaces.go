package session

import (
	"context"
)

// AuthAPI defines the backend calls the session depends on.
// Every error is expected to be an *errors.AppError.
type AuthAPI interface {
	// EmailLogin signs in with email and password and returns the raw reply
	EmailLogin(ctx context.Context, email, password string) (string, error)

	// EmailSignup creates an account and returns the raw reply
	EmailSignup(ctx context.Context, email, firstName, lastName, password string) (string, error)

	// IdentityProviderCallback exchanges hosted-login tokens for a backend session
	IdentityProviderCallback(ctx context.Context, accessToken, idToken string) (string, error)

	// Refresh trades a refresh token for new session tokens
	Refresh(ctx context.Context, refreshToken string) (string, error)

	// FetchProfile reads the signed-in user's profile
	FetchProfile(ctx context.Context, accessToken string) (string, error)
}

// CacheInvalidator is told when the session ends so it can drop user data
type CacheInvalidator interface {
	InvalidateSession(ctx context.Context)
}

// CacheInvalidatorFunc adapts a function to CacheInvalidator
type CacheInvalidatorFunc func(ctx context.Context)

// InvalidateSession implements CacheInvalidator
func (f CacheInvalidatorFunc) InvalidateSession(ctx context.Context) {
	f(ctx)
}
