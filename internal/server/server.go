// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/config"
	"codeberg.org/oliverandrich/readinglog/internal/database"
	"codeberg.org/oliverandrich/readinglog/internal/handlers"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/account"
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/email"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/recovery"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/signup"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// Services are the workflow services behind the HTTP API.
type Services struct {
	Repo     *repository.Repository
	Sessions *session.Manager
	Auth     *auth.Service
	SignUp   *signup.Service
	Recovery *recovery.Service
	Account  *account.Service
}

// NewServices wires the workflow services. A nil redis client disables
// attempt limiting.
func NewServices(cfg *config.Config, repo *repository.Repository, mailer email.Mailer, rdb redis.UniversalClient, clk clock.Clock) (*Services, error) {
	sessions, err := session.NewManager(&cfg.Session, clk)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}

	var lim *limiter.Limiter
	if rdb != nil {
		lim = limiter.New(rdb)
	}
	rules := limiter.RulesFromConfig(&cfg.Limits)
	codes := verification.NewEngine(clk)

	rec, err := recovery.NewService(&cfg.Recovery, repo, codes, mailer, sessions, lim, rules, clk, cfg.Server.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("recovery service: %w", err)
	}

	return &Services{
		Repo:     repo,
		Sessions: sessions,
		Auth:     auth.NewService(repo, sessions, lim, rules, clk),
		SignUp:   signup.NewService(repo, codes, mailer, sessions, lim, rules, clk),
		Recovery: rec,
		Account:  account.NewService(repo, codes, mailer, sessions, lim, rules, clk),
	}, nil
}

// New builds the Echo instance serving the API.
func New(cfg *config.Config, svc *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg)
	setupRoutes(e, svc)
	return e
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"environment", cfg.Server.Environment,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Redis
	rdb, err := openRedis(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	var limitStore redis.UniversalClient
	if rdb != nil {
		limitStore = rdb
		defer func() {
			_ = rdb.Close()
		}()
	}

	// Mail
	mailer, err := email.New(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to set up mailer: %w", err)
	}

	svc, err := NewServices(cfg, repository.New(db), mailer, limitStore, clock.Real())
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(New(cfg, svc), cfg)
}

// openRedis connects to the limiter store. An empty address disables it.
func openRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		slog.Warn("no Redis address configured, attempt limiting is disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Limiting fails open, so an unreachable store is not fatal.
		slog.Warn("redis unreachable, attempts are not limited until it recovers", "addr", cfg.Addr, "error", err)
	}
	return rdb, nil
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)

	// HTTP challenge server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("ACME challenge listener active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown ACME challenge server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
