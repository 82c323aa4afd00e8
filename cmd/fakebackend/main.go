package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"mobile-session/internal/fakebackend"
	"mobile-session/internal/metrics"
	"mobile-session/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	server *http.Server
	log    *logger.Logger
	mu     sync.Mutex
	closed bool
}

// Cleanup gracefully stops the HTTP server
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	r.log.Info("Shutting down HTTP server...")
	if err := r.server.Shutdown(ctx); err != nil {
		r.log.WithError(err).Error("Failed to shutdown HTTP server")
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	r.log.Info("HTTP server shutdown complete")
	return nil
}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	addr := getEnv("FAKE_BACKEND_ADDR", ":8080")
	secret := getEnv("FAKE_BACKEND_SECRET", "local-development-secret")
	accessTTL := 15 * time.Minute
	if v := os.Getenv("FAKE_BACKEND_ACCESS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			accessTTL = d
		}
	}

	m := metrics.New()
	backend := fakebackend.New(secret, log,
		fakebackend.WithAccessTTL(accessTTL),
		fakebackend.WithMetrics(m),
	)

	if email := os.Getenv("FAKE_BACKEND_SEED_EMAIL"); email != "" {
		u := backend.AddAccount(email, getEnv("FAKE_BACKEND_SEED_PASSWORD", "password"), "Demo", "User")
		log.WithField("user_id", u.ID).Info("Seeded demo account")
	}

	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Mount("/", backend.Router())

	server := &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	resources := &Resources{server: server, log: log}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":       addr,
			"access_ttl": accessTTL.String(),
		}).Info("Fake backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := resources.Cleanup(shutdownCtx); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
