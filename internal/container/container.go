package container

import (
	"context"
	"fmt"
	"net/http"

	"mobile-session/internal/authclient"
	"mobile-session/internal/config"
	"mobile-session/internal/credstore"
	"mobile-session/internal/idp"
	"mobile-session/internal/metrics"
	"mobile-session/internal/session"
	"mobile-session/pkg/logger"
	"mobile-session/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	Metrics     *metrics.Metrics
	Store       *credstore.Store
	AuthClient  *authclient.Client
	Session     *session.Manager

	redisBackend *credstore.RedisBackend
}

// StorageStatus describes the credential backend for diagnostics
type StorageStatus struct {
	Backend   string
	Reachable bool
	Fields    []string
	Error     error
}

// Option configures optional collaborators
type Option func(*options)

type options struct {
	httpClient  *http.Client
	invalidator session.CacheInvalidator
}

// WithHTTPClient sets the client used for backend auth calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCacheInvalidator registers the cache layer told about sign-outs
func WithCacheInvalidator(ci session.CacheInvalidator) Option {
	return func(o *options) { o.invalidator = ci }
}

// New creates a new dependency injection container
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(),
	}

	backend, err := c.openBackend()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = credstore.Open(backend, cfg.CredentialKey, log)
	log.WithField("backend", c.Store.BackendName()).Info("Credential store ready")

	c.AuthClient = authclient.NewClient(cfg, o.httpClient, log, c.Metrics)

	managerOpts := []session.Option{session.WithMetrics(c.Metrics)}
	if o.invalidator != nil {
		managerOpts = append(managerOpts, session.WithCacheInvalidator(o.invalidator))
	}
	c.Session = session.NewManager(c.Store, c.AuthClient, log, managerOpts...)

	return c, nil
}

func (c *Container) openBackend() (credstore.Backend, error) {
	switch c.Config.CredentialStore {
	case config.StoreMemory:
		return credstore.NewMemoryBackend(), nil
	case config.StoreFile:
		fb, err := credstore.NewFileBackend(c.Config.CredentialPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential file: %w", err)
		}
		return fb, nil
	case config.StoreRedis:
		client, err := redis.NewClient(c.Config.RedisURL, c.Config.Environment, c.Logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		c.RedisClient = client
		c.redisBackend = credstore.NewRedisBackend(client, c.Config.Environment)
		c.Logger.Info("Redis client initialized successfully")
		return c.redisBackend, nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", c.Config.CredentialStore)
	}
}

// Authenticator returns a hosted-login authenticator. connection may be empty to show the provider picker.
func (c *Container) Authenticator(prompt idp.Prompt, connection string) idp.Authenticator {
	auth := idp.NewOAuth2Authenticator(c.Config.IdentityProvider, prompt, c.Logger)
	if connection != "" {
		return auth.WithConnection(connection)
	}
	return auth
}

// APIClient returns an HTTP client that authenticates non-auth API calls with the session
func (c *Container) APIClient() *http.Client {
	return session.NewAuthTransport(c.Session, nil).Client()
}

// StorageStatus reports whether the credential backend is reachable and, for Redis,
// which slots it currently holds. Local backends are always reachable.
func (c *Container) StorageStatus(ctx context.Context) StorageStatus {
	status := StorageStatus{Backend: c.Store.BackendName(), Reachable: true}
	if c.redisBackend == nil {
		return status
	}

	if err := c.redisBackend.Health(ctx); err != nil {
		status.Reachable = false
		status.Error = err
		return status
	}
	fields, err := c.redisBackend.Fields(ctx)
	if err != nil {
		status.Error = err
		return status
	}
	status.Fields = fields
	return status
}

// HasRedis returns true if the Redis backend is in use
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// Close releases external connections
func (c *Container) Close() error {
	if c.RedisClient != nil {
		return c.RedisClient.Close()
	}
	return nil
}
