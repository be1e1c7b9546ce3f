// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coursehub/portal/internal/config"
	"github.com/coursehub/portal/internal/rest"
	"github.com/coursehub/portal/internal/storage/sqlite"
	"github.com/coursehub/portal/pkg/health"
	"github.com/coursehub/portal/pkg/metrics"
	"github.com/coursehub/portal/pkg/passkey"
	"github.com/coursehub/portal/pkg/ratelimit"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coursehub portal server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("PORTAL_CONFIG"); envConfig != "" && *configPath == "" {
		*configPath = envConfig
	}

	// With no config file the defaults still pick up PORTAL_* overrides.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting portal server",
		"version", version,
		"rp_id", cfg.Passkey.RPID,
		"storage", cfg.Storage.Backend)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	checker := health.NewChecker()

	// Credential store
	var credStore passkey.CredentialStore
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open credential store: %w", err)
		}
		defer store.Close()
		checker.Register("credential_store", func(ctx context.Context) health.CheckResult {
			if err := store.Ping(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Message: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		})
		credStore = store
	default:
		credStore = passkey.NewMemoryCredentialStore()
	}

	// TODO: back the identity store with the portal user directory once
	// its lookup API is available; until then accounts are in-memory.
	identities := passkey.NewMemoryIdentityStore()

	var tokens passkey.TokenIssuer
	if cfg.Token.Enabled {
		key, err := loadSigningKey(cfg.Token.KeyFile)
		if err != nil {
			return fmt.Errorf("load token signing key: %w", err)
		}
		issuer, err := passkey.NewJWTIssuer(&passkey.JWTIssuerConfig{
			PrivateKey: key,
			Issuer:     cfg.Token.Issuer,
			Audience:   []string{cfg.Token.Audience},
			ExpiresIn:  cfg.Token.TTL,
		})
		if err != nil {
			return fmt.Errorf("create token issuer: %w", err)
		}
		tokens = issuer
	}

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config:      &cfg.Passkey,
		Identities:  identities,
		Challenges:  passkey.NewMemoryChallengeStore(),
		Credentials: credStore,
		Tokens:      tokens,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create passkey service: %w", err)
	}

	tlsCfg, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("load TLS config: %w", err)
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	defer limiter.Stop()

	server, err := rest.NewServer(&rest.Config{
		Addr:           net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Service:        svc,
		Checker:        checker,
		Logger:         logger,
		TLSConfig:      tlsCfg,
		RateLimiter:    limiter,
		HealthEnabled:  cfg.Health.Enabled,
		HealthPath:     cfg.Health.Path,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		collector := metrics.StartResourceCollector(ctx, 15*time.Second)
		defer collector.Stop()
	} else {
		metrics.Disable()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	checker.MarkStarted()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Stop(shutdownCtx); err != nil {
		return err
	}

	logger.Info("portal server stopped")
	return nil
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadSigningKey reads a PEM-encoded ECDSA P-256 private key, or generates
// an ephemeral one when no key file is configured. Ephemeral keys mean
// issued tokens do not survive a restart.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	// #nosec G304 - Key file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key in %s is not an ECDSA key", path)
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
