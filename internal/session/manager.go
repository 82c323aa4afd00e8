package session

import (
	"context"
	stderrors "errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"mobile-session/internal/credstore"
	"mobile-session/internal/domain"
	"mobile-session/internal/envelope"
	"mobile-session/internal/idp"
	"mobile-session/internal/metrics"
	"mobile-session/pkg/errors"
	"mobile-session/pkg/logger"
)

// Outcome is the result of an interactive login. OutcomeFailed always comes with a non-nil error.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

// Flow names used in logs and metrics
const (
	flowBootstrap = "bootstrap"
	flowLogin     = "login_email"
	flowSignup    = "signup_email"
	flowExchange  = "identity_exchange"
	flowProfile   = "profile_refresh"
	flowSignOut   = "sign_out"
)

const refreshKey = "refresh"

var allStates = []string{
	domain.StateUnknown.String(),
	domain.StateUnauthenticated.String(),
	domain.StateAuthenticated.String(),
}

// errStale marks a result computed for a session that has since been signed out
var errStale = stderrors.New("session ended while the operation was in flight")

// Manager owns the authentication state of the process.
//
// Mutating flows (bootstrap, login, signup, exchange) queue on flowMu. Credential writes and
// state publication happen under storeMu and only if the session epoch they started in is
// still current. SignOut bumps the epoch without waiting for flowMu, so it returns at once and
// anything still in flight discards its result.
type Manager struct {
	store       *credstore.Store
	api         AuthAPI
	logger      *logger.Logger
	metrics     *metrics.Metrics
	invalidator CacheInvalidator

	flowMu sync.Mutex

	storeMu sync.Mutex
	epoch   uint64

	refreshGroup singleflight.Group

	state *Observable[domain.AuthState]
	user  *Observable[*domain.User]
}

// Option configures a Manager
type Option func(*Manager)

// WithMetrics records flow outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithCacheInvalidator registers the cache layer told about sign-outs
func WithCacheInvalidator(ci CacheInvalidator) Option {
	return func(mgr *Manager) { mgr.invalidator = ci }
}

// NewManager creates a manager in StateUnknown. Call Bootstrap once at start.
func NewManager(store *credstore.Store, api AuthAPI, log *logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Manager{
		store:  store,
		api:    api,
		logger: log.Named("session"),
		state:  NewObservable(domain.StateUnknown),
		user:   NewObservable[*domain.User](nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics.SetAuthState(domain.StateUnknown.String(), allStates...)
	return m
}

// State returns the published auth state
func (m *Manager) State() domain.AuthState {
	return m.state.Get()
}

// CurrentUser returns a copy of the published user, or nil
func (m *Manager) CurrentUser() *domain.User {
	u := m.user.Get()
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// SubscribeState streams auth state changes
func (m *Manager) SubscribeState() (<-chan domain.AuthState, func()) {
	return m.state.Subscribe()
}

// SubscribeUser streams user changes. nil means signed out or not yet known.
func (m *Manager) SubscribeUser() (<-chan *domain.User, func()) {
	return m.user.Subscribe()
}

// Bootstrap establishes the initial state from storage, then validates the session against the backend.
// Authenticated is published before any network call. The only error returned is the
// Unauthorized that forced a sign-out after a failed refresh.
//
// The profile step runs on the calling goroutine and holds the flow lock until it finishes.
// Callers that must not block on the network start it with go and watch SubscribeState.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	epoch := m.currentEpoch()

	if !m.store.HasTokens(ctx) {
		_ = m.commit(epoch, func() error {
			m.publishState(domain.StateUnauthenticated)
			return nil
		})
		m.metrics.FlowCompleted(flowBootstrap, "no_session")
		m.logger.Info("No stored session")
		return nil
	}

	if err := m.commit(epoch, func() error {
		m.publishState(domain.StateAuthenticated)
		return nil
	}); err != nil {
		return nil
	}

	err := m.validate(ctx, epoch)
	m.metrics.FlowCompleted(flowBootstrap, outcomeOf(err))
	return err
}

// RefreshProfile re-runs session validation for an already signed-in session
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	if m.State() != domain.StateAuthenticated {
		return errors.NewUnauthorizedError("Not signed in")
	}
	err := m.validate(ctx, m.currentEpoch())
	m.metrics.FlowCompleted(flowProfile, outcomeOf(err))
	return err
}

// LoginWithEmail signs in with email and password. Stored state is untouched on failure.
func (m *Manager) LoginWithEmail(ctx context.Context, email, password string) error {
	return m.emailFlow(ctx, flowLogin, func() (string, error) {
		return m.api.EmailLogin(ctx, email, password)
	})
}

// Signup creates an account and signs in with it. Stored state is untouched on failure.
func (m *Manager) Signup(ctx context.Context, email, firstName, lastName, password string) error {
	return m.emailFlow(ctx, flowSignup, func() (string, error) {
		return m.api.EmailSignup(ctx, email, firstName, lastName, password)
	})
}

func (m *Manager) emailFlow(ctx context.Context, flow string, call func() (string, error)) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	log := m.logger.WithField("flow", flow)
	epoch := m.currentEpoch()

	body, err := call()
	if err != nil {
		log.WithError(err).Warn("Email flow failed")
		m.metrics.FlowCompleted(flow, outcomeOf(err))
		return err
	}

	access, ok := envelope.ExtractEmailToken(body)
	if !ok {
		err := missingTokenError(body)
		log.WithError(err).Warn("Email flow reply carried no token")
		m.metrics.FlowCompleted(flow, outcomeOf(err))
		return err
	}
	if !credstore.IsValidJWTShape(access) {
		err := errors.NewInvalidTokenError("Received an invalid session token")
		log.WithField("access_token", logger.TokenPrefix(access)).Warn("Rejected non-JWT token")
		m.metrics.FlowCompleted(flow, outcomeOf(err))
		return err
	}
	refresh, _ := envelope.ExtractEmailRefreshToken(body)

	if err := m.establish(ctx, epoch, access, refresh, nil); err != nil {
		m.metrics.FlowCompleted(flow, outcomeOf(err))
		return err
	}

	log.Info("Signed in")
	_ = m.validate(ctx, epoch)
	m.metrics.FlowCompleted(flow, "success")
	return nil
}

// LoginWithIdentityProvider runs the hosted login and exchanges its tokens for a backend session.
// A user cancellation returns OutcomeCancelled with a nil error and leaves storage untouched.
// Any other failure returns OutcomeFailed with the error.
func (m *Manager) LoginWithIdentityProvider(ctx context.Context, auth idp.Authenticator) (Outcome, error) {
	log := m.logger.WithField("flow", flowExchange)

	// the interactive step runs outside flowMu so a slow user does not block bootstrap
	creds, err := auth.Authenticate(ctx)
	if err != nil {
		if errors.IsCancelled(err) {
			log.Info("Hosted login cancelled")
			m.metrics.FlowCompleted(flowExchange, "cancelled")
			return OutcomeCancelled, nil
		}
		log.WithError(err).Warn("Hosted login failed")
		m.metrics.FlowCompleted(flowExchange, outcomeOf(err))
		return OutcomeFailed, err
	}

	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	epoch := m.currentEpoch()
	fail := func(err error) (Outcome, error) {
		log.WithError(err).Warn("Identity exchange failed")
		m.metrics.FlowCompleted(flowExchange, outcomeOf(err))
		return OutcomeFailed, err
	}

	if err := m.commit(epoch, func() error {
		return m.store.SetIdentityProviderTokens(ctx, creds.AccessToken, creds.IDToken)
	}); err != nil {
		return fail(staleAsCancelled(err))
	}

	body, err := m.api.IdentityProviderCallback(ctx, creds.AccessToken, creds.IDToken)
	if err != nil {
		return fail(err)
	}

	tokens, ok := envelope.ExtractTokens(body)
	if !ok {
		return fail(missingTokenError(body))
	}
	if !credstore.IsValidJWTShape(tokens.AccessToken) {
		return fail(errors.NewInvalidTokenError("Received an invalid session token"))
	}

	if err := m.establish(ctx, epoch, tokens.AccessToken, tokens.RefreshToken, tokens.User); err != nil {
		return fail(err)
	}

	log.Info("Signed in with identity provider")
	_ = m.validate(ctx, epoch)
	m.metrics.FlowCompleted(flowExchange, "success")
	return OutcomeSuccess, nil
}

// establish stores fresh backend tokens and publishes Authenticated in one critical section
func (m *Manager) establish(ctx context.Context, epoch uint64, access, refresh string, user *envelope.Tree) error {
	err := m.commit(epoch, func() error {
		if err := m.store.StoreTokens(ctx, access, refresh); err != nil {
			return err
		}
		m.publishState(domain.StateAuthenticated)
		if user != nil {
			if u, ok := envelope.UserFromTree(user); ok {
				m.publishUserLocked(ctx, u, user.Raw())
			}
		}
		return nil
	})
	return staleAsCancelled(err)
}

// SignOut erases every stored credential, clears the user and publishes Unauthenticated.
// It is idempotent and does not wait for in-flight flows; their results are discarded.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.signOut(ctx, "requested")
}

func (m *Manager) signOut(ctx context.Context, reason string) error {
	m.storeMu.Lock()
	err := m.endSessionLocked(ctx)
	m.storeMu.Unlock()
	return m.afterSignOut(ctx, reason, err)
}

// signOutIfCurrent signs out only if the session that epoch belongs to is still the current one.
// A caller acting on a stale result must not end a session established after it started.
func (m *Manager) signOutIfCurrent(ctx context.Context, epoch uint64, reason string) (bool, error) {
	m.storeMu.Lock()
	if m.epoch != epoch {
		m.storeMu.Unlock()
		m.metrics.FlowCompleted(flowSignOut, "skipped_stale")
		m.logger.WithField("reason", reason).Info("Session already ended, sign-out skipped")
		return false, nil
	}
	err := m.endSessionLocked(ctx)
	m.storeMu.Unlock()
	return true, m.afterSignOut(ctx, reason, err)
}

// endSessionLocked bumps the epoch and erases the session. storeMu must be held.
func (m *Manager) endSessionLocked(ctx context.Context) error {
	m.epoch++
	err := m.store.ClearAll(ctx)
	m.user.set(nil)
	m.publishState(domain.StateUnauthenticated)
	return err
}

func (m *Manager) afterSignOut(ctx context.Context, reason string, err error) error {
	// later refreshes must not join one started before the sign-out
	m.refreshGroup.Forget(refreshKey)

	if m.invalidator != nil {
		m.invalidator.InvalidateSession(ctx)
	}

	m.metrics.FlowCompleted(flowSignOut, reason)
	if err != nil {
		m.logger.WithError(err).Error("Failed to erase stored session")
		return err
	}
	m.logger.WithField("reason", reason).Info("Signed out")
	return nil
}

// validate is the profile step of bootstrap. Only a failed refresh after a 401 is fatal.
func (m *Manager) validate(ctx context.Context, epoch uint64) error {
	access, ok := m.store.AccessToken(ctx)
	if !ok {
		return nil
	}

	body, err := m.api.FetchProfile(ctx, access)
	if err == nil {
		m.applyProfile(ctx, epoch, body)
		return nil
	}

	if !errors.IsUnauthorized(err) {
		m.logger.WithError(err).Warn("Profile fetch failed, keeping session")
		m.restoreCachedUser(ctx, epoch)
		return nil
	}

	m.logger.Info("Profile fetch unauthorized, refreshing tokens")
	access, err = m.RefreshTokens(ctx)
	if err != nil {
		if errors.IsCancelled(err) && ctx.Err() != nil {
			return err
		}
		m.logger.WithError(err).Warn("Token refresh failed, signing out")
		if ended, _ := m.signOutIfCurrent(ctx, epoch, "refresh_failed"); !ended {
			return nil
		}
		return errors.NewUnauthorizedError("Session expired. Please sign in again.")
	}

	body, err = m.api.FetchProfile(ctx, access)
	if err != nil {
		m.logger.WithError(err).Warn("Profile fetch after refresh failed, keeping session")
		return nil
	}
	m.applyProfile(ctx, epoch, body)
	return nil
}

// applyProfile publishes and caches the user in body. A reply without a user leaves the current one.
func (m *Manager) applyProfile(ctx context.Context, epoch uint64, body string) {
	u, ok := envelope.ExtractUser(body)
	if !ok {
		m.logger.Debug("Profile reply carried no user, keeping cached user")
		return
	}
	_ = m.commit(epoch, func() error {
		m.publishUserLocked(ctx, u, body)
		return nil
	})
}

func (m *Manager) restoreCachedUser(ctx context.Context, epoch uint64) {
	if m.user.Get() != nil {
		return
	}
	cached, ok := m.store.CachedUserSummary(ctx)
	if !ok {
		return
	}
	u, ok := envelope.ExtractUser(cached)
	if !ok {
		return
	}
	_ = m.commit(epoch, func() error {
		m.user.set(u)
		return nil
	})
}

// publishUserLocked requires storeMu
func (m *Manager) publishUserLocked(ctx context.Context, u *domain.User, raw string) {
	m.user.set(u)
	if err := m.store.CacheUser(ctx, u.ID, raw); err != nil {
		m.logger.WithError(err).Warn("Failed to cache user summary")
	}
}

// publishState requires storeMu
func (m *Manager) publishState(s domain.AuthState) {
	if m.state.Get() != s {
		m.logger.WithField("state", s.String()).Debug("Auth state changed")
	}
	m.state.set(s)
	m.metrics.SetAuthState(s.String(), allStates...)
}

func (m *Manager) currentEpoch() uint64 {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	return m.epoch
}

// sessionToken reads the access token together with the epoch it belongs to
func (m *Manager) sessionToken(ctx context.Context) (uint64, string) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	token, _ := m.store.AccessToken(ctx)
	return m.epoch, token
}

// commit runs fn under storeMu if no sign-out happened since epoch was read
func (m *Manager) commit(epoch uint64, fn func() error) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if m.epoch != epoch {
		return errStale
	}
	return fn()
}

func staleAsCancelled(err error) error {
	if stderrors.Is(err, errStale) {
		return errors.NewCancelledError("Signed out while signing in")
	}
	return err
}

func missingTokenError(body string) error {
	if msg, ok := envelope.ErrorMessage(body); ok {
		return errors.NewServerError(0, msg)
	}
	return errors.NewDecodingError("Response did not contain a session token", nil)
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(errors.TypeOf(err))
}
