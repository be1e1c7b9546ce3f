// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coursehub/portal/pkg/health"
	"github.com/coursehub/portal/pkg/metrics"
	"github.com/coursehub/portal/pkg/passkey"
	passkeyhttp "github.com/coursehub/portal/pkg/passkey/http"
	"github.com/coursehub/portal/pkg/ratelimit"
)

// Server is the portal HTTP server. It serves the passkey ceremony
// endpoints and credential administration, and optionally the health probe
// and Prometheus metrics endpoints.
type Server struct {
	server  *http.Server
	service *passkey.Service
	handler *passkeyhttp.Handler
	checker *health.Checker
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	addr    string
	tlsCfg  *tls.Config

	healthEnabled  bool
	healthPath     string
	metricsEnabled bool
	metricsPath    string
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the listen address in host:port form (default: :8443)
	Addr string

	// Service is the passkey ceremony service. Required.
	Service *passkey.Service

	// Handler serves the passkey HTTP endpoints. When nil, one is built
	// from Service with default options.
	Handler *passkeyhttp.Handler

	// Checker drives the health probe endpoints (optional).
	Checker *health.Checker

	// Logger is the structured logger (optional, defaults to slog.Default).
	Logger *slog.Logger

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// RateLimiter throttles the passkey ceremony routes when set.
	RateLimiter *ratelimit.Limiter

	// HealthEnabled mounts the health probe endpoints under HealthPath
	// (default: /health).
	HealthEnabled bool
	HealthPath    string

	// MetricsEnabled exposes Prometheus metrics at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new portal REST server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("passkey service is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8443"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := cfg.Handler
	if handler == nil {
		handler = passkeyhttp.NewHandler(cfg.Service).
			WithLogger(logger).
			WithVerificationFailureHook(func(ceremony string, err error) {
				metrics.RecordVerificationFailure(ceremony, verificationErrorType(err))
			})
	}

	srv := &Server{
		service:        cfg.Service,
		handler:        handler,
		checker:        cfg.Checker,
		logger:         logger,
		limiter:        cfg.RateLimiter,
		addr:           cfg.Addr,
		tlsCfg:         cfg.TLSConfig,
		healthEnabled:  cfg.HealthEnabled,
		healthPath:     cfg.HealthPath,
		metricsEnabled: cfg.MetricsEnabled,
		metricsPath:    cfg.MetricsPath,
	}

	srv.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return srv, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(CorrelationMiddleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(SecurityHeadersMiddleware)

	if s.healthEnabled {
		r.Get(s.healthPath, s.HealthHandler)
		r.Head(s.healthPath, s.HealthHandler)
		r.Get(s.healthPath+"/live", s.LivenessHandler)
		r.Get(s.healthPath+"/ready", s.ReadinessHandler)
		r.Get(s.healthPath+"/startup", s.StartupHandler)
	}

	if s.metricsEnabled {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/passkey", func(r chi.Router) {
			if s.limiter != nil {
				r.Use(ratelimit.Middleware(s.limiter))
			}
			r.With(metrics.ChallengeMiddleware(metrics.CeremonyRegistration)).
				Post("/registration/challenge", s.handler.RegistrationChallenge)
			r.With(metrics.CeremonyMiddleware(metrics.CeremonyRegistration)).
				Post("/registration/complete", s.handler.CompleteRegistration)
			r.With(metrics.ChallengeMiddleware(metrics.CeremonyAuthentication)).
				Post("/authentication/challenge", s.handler.AuthenticationChallenge)
			r.With(metrics.CeremonyMiddleware(metrics.CeremonyAuthentication)).
				Post("/authentication/complete", s.handler.CompleteAuthentication)
		})

		// Credential administration
		r.Get("/users/{userID}/credentials", s.ListCredentialsHandler)
		r.Delete("/users/{userID}/credentials", s.RevokeCredentialsHandler)
	})

	return r
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	if s.tlsCfg != nil {
		s.logger.Info("starting HTTPS server", "addr", s.addr)
		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.server.Handler
}

// verificationErrorType buckets verification errors into metric labels.
// Responses to clients stay generic; this detail only reaches Prometheus.
func verificationErrorType(err error) string {
	switch {
	case errors.Is(err, passkey.ErrClonedAuthenticator):
		return "cloned_authenticator"
	case errors.Is(err, passkey.ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, passkey.ErrRelyingPartyMismatch):
		return "relying_party_mismatch"
	default:
		return "verification_failed"
	}
}
