package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBackendURL  = "https://pacedream-backend.onrender.com"
	defaultFrontendURL = "https://www.pacedream.com"
	defaultIdPDomain   = "dev-pacedream.us.auth0.com"
	apiVersionSegment  = "v1"
)

// Store backends accepted by CREDENTIAL_STORE
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all configuration values for the session core
type Config struct {
	APIBaseURL      *url.URL // normalised, always ends in /v1
	FrontendBaseURL *url.URL // normalised, never carries /v1
	RequestTimeout  time.Duration

	IdentityProvider IdentityProviderConfig

	CredentialStore string
	CredentialPath  string
	CredentialKey   string
	RedisURL        string

	LogLevel    string
	Environment string
	MetricsAddr string
}

// IdentityProviderConfig holds the hosted-login settings
type IdentityProviderConfig struct {
	Domain      string
	ClientID    string
	Audience    string
	RedirectURL string
	Scopes      []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	apiURL, err := NormalizeAPIURL(getEnv("BACKEND_BASE_URL", getEnv("PD_BACKEND_BASE_URL", defaultBackendURL)))
	if err != nil {
		return nil, err
	}
	frontendURL, err := NormalizeFrontendURL(getEnv("FRONTEND_BASE_URL", getEnv("PD_FRONTEND_BASE_URL", defaultFrontendURL)))
	if err != nil {
		return nil, err
	}

	domain := getEnv("IDP_DOMAIN", defaultIdPDomain)
	cfg := &Config{
		APIBaseURL:      apiURL,
		FrontendBaseURL: frontendURL,
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", 15*time.Second),
		IdentityProvider: IdentityProviderConfig{
			Domain:      domain,
			ClientID:    getEnv("IDP_CLIENT_ID", ""),
			Audience:    getEnv("IDP_AUDIENCE", "https://"+domain+"/api/v2/"),
			RedirectURL: getEnv("IDP_REDIRECT_URL", "pacedream://callback"),
			Scopes:      parseList(getEnv("IDP_SCOPES", "openid,profile,email,offline_access")),
		},
		CredentialStore: strings.ToLower(getEnv("CREDENTIAL_STORE", StoreFile)),
		CredentialPath:  getEnv("CREDENTIAL_STORE_PATH", "pacedream_secure_prefs.json"),
		CredentialKey:   getEnv("CREDENTIAL_STORE_KEY", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ForEndpoints returns a memory-store configuration pointed at the given origins
func ForEndpoints(backendURL, frontendURL string) (*Config, error) {
	apiURL, err := NormalizeAPIURL(backendURL)
	if err != nil {
		return nil, err
	}
	feURL, err := NormalizeFrontendURL(frontendURL)
	if err != nil {
		return nil, err
	}
	return &Config{
		APIBaseURL:      apiURL,
		FrontendBaseURL: feURL,
		RequestTimeout:  15 * time.Second,
		IdentityProvider: IdentityProviderConfig{
			Domain: defaultIdPDomain,
			Scopes: []string{"openid", "profile", "email", "offline_access"},
		},
		CredentialStore: StoreMemory,
		LogLevel:        "info",
		Environment:     "test",
	}, nil
}

// Validate checks the combinations Load cannot default away
func (c *Config) Validate() error {
	var problems []string

	switch c.CredentialStore {
	case StoreFile:
		if c.CredentialPath == "" {
			problems = append(problems, "CREDENTIAL_STORE_PATH is required for the file store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for the redis store")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown CREDENTIAL_STORE %q", c.CredentialStore))
	}

	if c.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// APIURL builds an endpoint under the /v1 API base
func (c *Config) APIURL(segments ...string) string {
	return joinSegments(c.APIBaseURL, segments)
}

// FrontendURL builds an endpoint on the frontend origin
func (c *Config) FrontendURL(segments ...string) string {
	return joinSegments(c.FrontendBaseURL, segments)
}

// NormalizeAPIURL adds a scheme if missing, strips trailing slashes and appends /v1 exactly once
func NormalizeAPIURL(raw string) (*url.URL, error) {
	s := normalizeOrigin(raw)
	s = strings.TrimSuffix(s, "/"+apiVersionSegment)
	u, err := parseAbsolute(s, raw)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + apiVersionSegment
	return u, nil
}

// NormalizeFrontendURL adds a scheme if missing and strips trailing slashes
func NormalizeFrontendURL(raw string) (*url.URL, error) {
	return parseAbsolute(normalizeOrigin(raw), raw)
}

func normalizeOrigin(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	return strings.TrimRight(s, "/")
}

func parseAbsolute(s, raw string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", raw)
	}
	return u, nil
}

func joinSegments(base *url.URL, segments []string) string {
	u := *base
	parts := []string{strings.TrimRight(u.Path, "/")}
	for _, segment := range segments {
		for _, part := range strings.Split(segment, "/") {
			if strings.TrimSpace(part) != "" {
				parts = append(parts, url.PathEscape(part))
			}
		}
	}
	u.Path = strings.Join(parts, "/")
	u.RawPath = ""
	return u.String()
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDurationEnv accepts Go durations ("15s") or plain seconds ("15")
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// parseList parses comma-separated values into a slice
func parseList(values string) []string {
	if values == "" {
		return []string{}
	}

	parts := strings.Split(values, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
