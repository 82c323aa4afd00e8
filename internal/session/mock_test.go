package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mobile-session/internal/credstore"
	"mobile-session/internal/domain"
	"mobile-session/pkg/errors"
)

// MockAuthAPI for testing
type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) EmailLogin(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthAPI) EmailSignup(ctx context.Context, email, firstName, lastName, password string) (string, error) {
	args := m.Called(ctx, email, firstName, lastName, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthAPI) IdentityProviderCallback(ctx context.Context, accessToken, idToken string) (string, error) {
	args := m.Called(ctx, accessToken, idToken)
	return args.String(0), args.Error(1)
}

func (m *MockAuthAPI) Refresh(ctx context.Context, refreshToken string) (string, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.Error(1)
}

func (m *MockAuthAPI) FetchProfile(ctx context.Context, accessToken string) (string, error) {
	args := m.Called(ctx, accessToken)
	return args.String(0), args.Error(1)
}

// fakeAuthenticator returns fixed credentials or error
type fakeAuthenticator struct {
	creds domain.IdentityCredentials
	err   error
}

func (f fakeAuthenticator) Authenticate(ctx context.Context) (domain.IdentityCredentials, error) {
	return f.creds, f.err
}

func makeJWT(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func tokenReply(access, refresh string) string {
	return fmt.Sprintf(`{"success":true,"data":{"accessToken":%q,"refreshToken":%q}}`, access, refresh)
}

func profileReply(id, email string) string {
	return fmt.Sprintf(`{"success":true,"data":{"_id":%q,"email":%q,"firstName":"Test"}}`, id, email)
}

type fixture struct {
	api     *MockAuthAPI
	backend *credstore.MemoryBackend
	store   *credstore.Store
	mgr     *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	api := &MockAuthAPI{}
	backend := credstore.NewMemoryBackend()
	store := credstore.New(backend, nil)
	return &fixture{
		api:     api,
		backend: backend,
		store:   store,
		mgr:     NewManager(store, api, nil, opts...),
	}
}

func (f *fixture) seedSession(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, f.store.StoreTokens(context.Background(), access, refresh))
}

var unauthorized = errors.NewUnauthorizedError("")
