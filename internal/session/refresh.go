package session

import (
	"context"

	"mobile-session/internal/credstore"
	"mobile-session/internal/envelope"
	"mobile-session/pkg/errors"
	"mobile-session/pkg/logger"
)

// RefreshTokens trades the stored refresh token for new tokens and returns the new access token.
// Concurrent callers share one network refresh. A refresh that completes after a sign-out
// stores nothing and fails with Unauthorized.
func (m *Manager) RefreshTokens(ctx context.Context) (string, error) {
	// the shared call must outlive any single caller giving up
	shared := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan(refreshKey, func() (interface{}, error) {
		return m.refresh(shared)
	})

	select {
	case <-ctx.Done():
		return "", errors.NewCancelledError("Refresh abandoned")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.Debug("Joined in-flight refresh")
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	epoch := m.currentEpoch()

	refreshToken, ok := m.store.RefreshToken(ctx)
	if !ok {
		m.metrics.RefreshCompleted("no_refresh_token")
		return "", errors.NewUnauthorizedError("No refresh token stored")
	}

	body, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		m.metrics.RefreshCompleted(string(errors.TypeOf(err)))
		return "", err
	}

	tokens, ok := envelope.ExtractTokens(body)
	if !ok {
		m.metrics.RefreshCompleted(string(errors.ErrorTypeDecoding))
		return "", missingTokenError(body)
	}
	if !credstore.IsValidJWTShape(tokens.AccessToken) {
		m.metrics.RefreshCompleted(string(errors.ErrorTypeInvalidToken))
		return "", errors.NewInvalidTokenError("Refresh returned an invalid token")
	}

	// keep the old refresh token when the reply does not rotate it
	nextRefresh := tokens.RefreshToken
	if nextRefresh == "" {
		nextRefresh = refreshToken
	}

	err = m.commit(epoch, func() error {
		return m.store.StoreTokens(ctx, tokens.AccessToken, nextRefresh)
	})
	if err == errStale {
		m.metrics.RefreshCompleted("discarded")
		m.logger.Info("Discarded refresh result after sign-out")
		return "", errors.NewUnauthorizedError("Signed out during refresh")
	}
	if err != nil {
		m.metrics.RefreshCompleted(string(errors.TypeOf(err)))
		return "", err
	}

	m.metrics.RefreshCompleted("success")
	m.logger.WithField("access_token", logger.TokenPrefix(tokens.AccessToken)).Info("Tokens refreshed")
	return tokens.AccessToken, nil
}
