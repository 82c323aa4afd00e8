// Package fakebackend is a local stand-in for the marketplace auth API.
// It serves the same routes and reply envelopes and mints HS256 JWTs.
package fakebackend

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mobile-session/internal/domain"
	"mobile-session/internal/metrics"
	"mobile-session/pkg/logger"
)

type account struct {
	user     domain.User
	password string
}

// Server holds accounts and issued refresh tokens in memory
type Server struct {
	secret    []byte
	accessTTL time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu            sync.Mutex
	accounts      map[string]*account // by lower-case email
	refreshTokens map[string]string   // token -> user id
	generation    int
	primaryDown   bool
	profileStatus int
}

// Option configures a Server
type Option func(*Server)

// WithAccessTTL sets the lifetime of minted access tokens
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) { s.accessTTL = ttl }
}

// WithMetrics instruments every route
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a server signing tokens with secret
func New(secret string, log *logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		secret:        []byte(secret),
		accessTTL:     15 * time.Minute,
		logger:        log.Named("fakebackend"),
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(RequestID(s.logger))
	r.Use(s.metrics.Instrument)

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login/email", s.loginEmail)
			r.Post("/signup/email", s.signupEmail)
			r.Post("/auth0/callback", s.identityCallback)
			r.With(s.primaryRefreshGate).Post("/refresh-token", s.refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(Auth(s.validateAccessToken, s.logger))
			r.Get("/account/me", s.profile)
			r.Get("/users/get/profile", s.profile)
			r.Get("/user/get/profile", s.profile)
		})
	})

	r.Post("/api/proxy/auth/refresh-token", s.refresh)

	return r
}

// AddAccount registers an email account and returns its user
func (s *Server) AddAccount(email, password, firstName, lastName string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(email, password, firstName, lastName)
}

func (s *Server) addAccountLocked(email, password, firstName, lastName string) domain.User {
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}
	s.accounts[strings.ToLower(email)] = &account{user: u, password: password}
	return u
}

// RevokeAccessTokens invalidates every access token minted so far. Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens forgets every issued refresh token
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]string)
}

// SetPrimaryRefreshDown makes /v1/auth/refresh-token answer 503 so clients use the proxy
func (s *Server) SetPrimaryRefreshDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaryDown = down
}

// SetProfileStatus forces every profile route to answer status. 0 restores normal replies.
func (s *Server) SetProfileStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileStatus = status
}

type accessClaims struct {
	Generation int `json:"gen"`
	jwt.RegisteredClaims
}

// issue mints an access token and a rotating refresh token for userID
func (s *Server) issue(userID string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	claims := accessClaims{
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh = hex.EncodeToString(buf)
	s.refreshTokens[refresh] = userID
	return access, refresh, nil
}

// validateAccessToken verifies signature, expiry and generation and returns the user id
func (s *Server) validateAccessToken(tokenString string) (string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return "", fmt.Errorf("token revoked")
	}
	return claims.Subject, nil
}

func (s *Server) userByID(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return domain.User{}, false
}
