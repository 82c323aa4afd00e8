package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAPIURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"bare host gets https and v1", "api.pacedream.com", "https://api.pacedream.com/v1"},
		{"trailing slashes removed", "https://api.pacedream.com///", "https://api.pacedream.com/v1"},
		{"existing v1 not doubled", "https://api.pacedream.com/v1/", "https://api.pacedream.com/v1"},
		{"http preserved", "http://127.0.0.1:8080", "http://127.0.0.1:8080/v1"},
		{"path prefix kept", "https://example.com/backend", "https://example.com/backend/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NormalizeAPIURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, u.String())
		})
	}
}

func TestNormalizeFrontendURL(t *testing.T) {
	u, err := NormalizeFrontendURL("www.pacedream.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://www.pacedream.com", u.String())

	_, err = NormalizeFrontendURL("https://")
	assert.Error(t, err)
}

func TestConfig_URLBuilders(t *testing.T) {
	cfg, err := ForEndpoints("https://api.pacedream.com", "https://www.pacedream.com")
	require.NoError(t, err)

	assert.Equal(t, "https://api.pacedream.com/v1/auth/login/email", cfg.APIURL("auth", "login", "email"))
	assert.Equal(t, "https://api.pacedream.com/v1/users/get/profile", cfg.APIURL("users/get/profile"))
	assert.Equal(t, "https://www.pacedream.com/api/proxy/auth/refresh-token", cfg.FrontendURL("api", "proxy", "auth", "refresh-token"))
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "backend.example.com/v1")
	t.Setenv("FRONTEND_BASE_URL", "https://front.example.com/")
	t.Setenv("REQUEST_TIMEOUT", "20")
	t.Setenv("CREDENTIAL_STORE", "MEMORY")
	t.Setenv("IDP_DOMAIN", "tenant.auth0.com")
	t.Setenv("IDP_SCOPES", "openid, email")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example.com/v1", cfg.APIBaseURL.String())
	assert.Equal(t, "https://front.example.com", cfg.FrontendBaseURL.String())
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
	assert.Equal(t, StoreMemory, cfg.CredentialStore)
	assert.Equal(t, "https://tenant.auth0.com/api/v2/", cfg.IdentityProvider.Audience)
	assert.Equal(t, []string{"openid", "email"}, cfg.IdentityProvider.Scopes)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		errContains string
	}{
		{"memory store is valid", func(c *Config) {}, ""},
		{"redis store needs url", func(c *Config) { c.CredentialStore = StoreRedis }, "REDIS_URL"},
		{"file store needs path", func(c *Config) { c.CredentialStore = StoreFile }, "CREDENTIAL_STORE_PATH"},
		{"unknown store", func(c *Config) { c.CredentialStore = "keychain" }, "unknown CREDENTIAL_STORE"},
		{"non-positive timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ForEndpoints("https://api.example.com", "https://www.example.com")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("TIMEOUT_A", "250ms")
	t.Setenv("TIMEOUT_B", "garbage")

	assert.Equal(t, 250*time.Millisecond, getDurationEnv("TIMEOUT_A", time.Second))
	assert.Equal(t, time.Second, getDurationEnv("TIMEOUT_B", time.Second))
	assert.Equal(t, time.Second, getDurationEnv("TIMEOUT_UNSET", time.Second))
}
