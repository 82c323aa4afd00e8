package credstore

import (
	"context"
	"strings"

	"mobile-session/pkg/errors"
	"mobile-session/pkg/logger"
)

// Storage slot names
const (
	keyAccessToken    = "access_token"
	keyRefreshToken   = "refresh_token"
	keyIdPAccessToken = "auth0_access_token"
	keyIdPIDToken     = "auth0_id_token"
	keyUserID         = "user_id"
	keyCachedUser     = "cached_user"
	prefPrefix        = "pref_"
)

// sessionKeys are the slots erased by ClearAll. Preferences are not among them.
var sessionKeys = []string{
	keyAccessToken,
	keyRefreshToken,
	keyIdPAccessToken,
	keyIdPIDToken,
	keyUserID,
	keyCachedUser,
}

// Store is the only owner of persisted session material
type Store struct {
	backend Backend
	logger  *logger.Logger
}

// New creates a store over backend without encryption
func New(backend Backend, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{backend: backend, logger: log.Named("credstore")}
}

// Open creates a store whose values are sealed with a key derived from masterKey.
// A missing key or a sealer that cannot be built falls back to the plain backend.
func Open(backend Backend, masterKey string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}

	sealer, err := NewSealer(masterKey)
	if err != nil {
		log.Named("credstore").WithError(err).WithField("backend", backend.Name()).
			Warn("Encrypted credential storage unavailable, using plain backend")
		return New(backend, log)
	}
	return New(NewEncryptedBackend(backend, sealer), log)
}

// BackendName reports which medium is in use
func (s *Store) BackendName() string {
	return s.backend.Name()
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("slot", key).Warn("Credential read failed, treating as absent")
		return "", false
	}
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (s *Store) update(ctx context.Context, set map[string]string, del []string) error {
	if err := s.backend.Update(ctx, set, del); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"set": len(set),
			"del": len(del),
		}).Error("Credential write failed")
		return errors.NewUnknownError("Failed to persist credentials", err)
	}
	return nil
}

// HasTokens reports whether a non-blank access token is stored
func (s *Store) HasTokens(ctx context.Context) bool {
	_, ok := s.get(ctx, keyAccessToken)
	return ok
}

// AccessToken returns the stored backend access token
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	return s.get(ctx, keyAccessToken)
}

// RefreshToken returns the stored backend refresh token
func (s *Store) RefreshToken(ctx context.Context) (string, bool) {
	return s.get(ctx, keyRefreshToken)
}

// StoreTokens writes both backend tokens in one backend update.
// An empty refresh token removes the refresh slot.
func (s *Store) StoreTokens(ctx context.Context, access, refresh string) error {
	if !IsValidJWTShape(access) {
		return errors.NewInvalidTokenError("Access token is not a JWT")
	}

	set := map[string]string{keyAccessToken: access}
	var del []string
	if strings.TrimSpace(refresh) == "" {
		del = []string{keyRefreshToken}
	} else {
		set[keyRefreshToken] = refresh
	}

	if err := s.update(ctx, set, del); err != nil {
		return err
	}

	log := s.logger.WithField("access_token", logger.TokenPrefix(access))
	if claims, ok := PeekClaims(access); ok {
		log = log.WithField("subject", claims.Subject).WithField("expires_at", claims.ExpiresAt)
	}
	log.Debug("Stored backend tokens")
	return nil
}

// SetIdentityProviderTokens stores the hosted-login tokens the session was exchanged from
func (s *Store) SetIdentityProviderTokens(ctx context.Context, accessToken, idToken string) error {
	set := map[string]string{}
	var del []string
	for key, value := range map[string]string{keyIdPAccessToken: accessToken, keyIdPIDToken: idToken} {
		if strings.TrimSpace(value) == "" {
			del = append(del, key)
		} else {
			set[key] = value
		}
	}
	return s.update(ctx, set, del)
}

// IdentityProviderTokens returns the stored hosted-login tokens
func (s *Store) IdentityProviderTokens(ctx context.Context) (accessToken, idToken string) {
	accessToken, _ = s.get(ctx, keyIdPAccessToken)
	idToken, _ = s.get(ctx, keyIdPIDToken)
	return accessToken, idToken
}

// UserID returns the id of the last profile seen
func (s *Store) UserID(ctx context.Context) (string, bool) {
	return s.get(ctx, keyUserID)
}

// CachedUserSummary returns the raw profile body kept for offline start
func (s *Store) CachedUserSummary(ctx context.Context) (string, bool) {
	return s.get(ctx, keyCachedUser)
}

// CacheUser stores the id and raw profile body together
func (s *Store) CacheUser(ctx context.Context, id, body string) error {
	set := map[string]string{keyCachedUser: body}
	if id != "" {
		set[keyUserID] = id
	}
	return s.update(ctx, set, nil)
}

// ClearAll erases every session slot in one update. Preferences survive.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.update(ctx, nil, sessionKeys); err != nil {
		return err
	}
	s.logger.Debug("Cleared stored session")
	return nil
}

// SetPreference stores a non-session value such as the last selected UI mode
func (s *Store) SetPreference(ctx context.Context, name, value string) error {
	return s.update(ctx, map[string]string{prefPrefix + name: value}, nil)
}

// Preference returns a value written by SetPreference
func (s *Store) Preference(ctx context.Context, name string) (string, bool) {
	return s.get(ctx, prefPrefix+name)
}
