// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// Deployment environments. Production hardens cookie attributes.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Session  SessionConfig
	Recovery RecoveryConfig
	SMTP     SMTPConfig
	Redis    RedisConfig
	Limits   LimitsConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host           string
	Port           int
	BaseURL        string
	FrontendOrigin string // allowed CORS origin of the web frontend
	Environment    string // development, production
	MaxBodySize    int    // in MB
}

// IsProduction reports whether the server runs with hardened settings.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, EnvProduction)
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string // file path for SQLite, postgres:// URL for PostgreSQL
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // manual mode
	KeyFile  string // manual mode
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string
	Secret     string // hex-encoded signing key, at least 32 bytes
	Lifetime   time.Duration
	Secure     bool // derived from the environment
}

type RecoveryConfig struct { //nolint:govet // fieldalignment not critical
	GrantKey        string // 32-byte hex string for HMAC signing
	GrantTTL        time.Duration
	UniformResponse bool // hide whether an email is registered
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type RedisConfig struct {
	Addr     string // empty disables attempt limiting
	Password string
	DB       int
}

type LimitsConfig struct { //nolint:govet // fieldalignment not critical
	LoginMax      int
	LoginWindow   time.Duration
	ConfirmMax    int
	ConfirmWindow time.Duration
	ResendMax     int
	ResendWindow  time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           cmd.String("host"),
			Port:           int(cmd.Int("port")),
			BaseURL:        cmd.String("base-url"),
			FrontendOrigin: cmd.String("frontend-origin"),
			Environment:    cmd.String("environment"),
			MaxBodySize:    int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			Secret:     cmd.String("session-secret"),
			Lifetime:   cmd.Duration("session-lifetime"),
		},
		Recovery: RecoveryConfig{
			GrantKey:        cmd.String("recovery-grant-key"),
			GrantTTL:        cmd.Duration("recovery-grant-ttl"),
			UniformResponse: cmd.Bool("recovery-uniform-response"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Redis: RedisConfig{
			Addr:     cmd.String("redis-addr"),
			Password: cmd.String("redis-password"),
			DB:       int(cmd.Int("redis-db")),
		},
		Limits: LimitsConfig{
			LoginMax:      int(cmd.Int("limit-login-max")),
			LoginWindow:   cmd.Duration("limit-login-window"),
			ConfirmMax:    int(cmd.Int("limit-confirm-max")),
			ConfirmWindow: cmd.Duration("limit-confirm-window"),
			ResendMax:     int(cmd.Int("limit-resend-max")),
			ResendWindow:  cmd.Duration("limit-resend-window"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Session.Secure = cfg.Server.IsProduction()

	return cfg
}

// Validate checks settings that must be explicit in production.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Server.Environment) {
	case EnvDevelopment:
		return nil
	case EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Server.Environment)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required in production")
	}
	if c.Recovery.GrantKey == "" {
		return fmt.Errorf("recovery grant key is required in production")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP host is required in production")
	}
	return nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "frontend-origin",
			Value:   "http://localhost:5173",
			Usage:   "Origin of the web frontend allowed to send credentialed requests",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FRONTEND_ORIGIN"), toml.TOML("server.frontend_origin", configFile)),
		},
		&cli.StringFlag{
			Name:    "environment",
			Value:   EnvDevelopment,
			Usage:   "Deployment environment (development, production)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("APP_ENV"), toml.TOML("server.environment", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/readinglog.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "off",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for the ACME certificate cache",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "token",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-secret",
			Usage:   "Session token signing key (hex, at least 32 bytes, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_SECRET"), toml.TOML("session.secret", configFile)),
		},
		&cli.DurationFlag{
			Name:    "session-lifetime",
			Value:   8 * time.Hour,
			Usage:   "Session token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_LIFETIME"), toml.TOML("session.lifetime", configFile)),
		},
		// Password recovery flags
		&cli.StringFlag{
			Name:    "recovery-grant-key",
			Usage:   "Recovery grant hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RECOVERY_GRANT_KEY"), toml.TOML("recovery.grant_key", configFile)),
		},
		&cli.DurationFlag{
			Name:    "recovery-grant-ttl",
			Value:   15 * time.Minute,
			Usage:   "How long a verified recovery may set a new password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RECOVERY_GRANT_TTL"), toml.TOML("recovery.grant_ttl", configFile)),
		},
		&cli.BoolFlag{
			Name:    "recovery-uniform-response",
			Usage:   "Answer recovery requests for unknown emails like known ones",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RECOVERY_UNIFORM_RESPONSE"), toml.TOML("recovery.uniform_response", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (empty logs mails instead of sending in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Reading Log",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Redis flags
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for attempt limiting (empty disables limiting)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_ADDR"), toml.TOML("redis.addr", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_PASSWORD"), toml.TOML("redis.password", configFile)),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_DB"), toml.TOML("redis.db", configFile)),
		},
		// Attempt limits
		&cli.IntFlag{
			Name:    "limit-login-max",
			Value:   10,
			Usage:   "Login attempts per email within the login window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LIMIT_LOGIN_MAX"), toml.TOML("limits.login_max", configFile)),
		},
		&cli.DurationFlag{
			Name:    "limit-login-window",
			Value:   15 * time.Minute,
			Usage:   "Login attempt window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LIMIT_LOGIN_WINDOW"), toml.TOML("limits.login_window", configFile)),
		},
		&cli.IntFlag{
			Name:    "limit-confirm-max",
			Value:   5,
			Usage:   "Verification code attempts per email within the confirm window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LIMIT_CONFIRM_MAX"), toml.TOML("limits.confirm_max", configFile)),
		},
		&cli.DurationFlag{
			Name:    "limit-confirm-window",
			Value:   10 * time.Minute,
			Usage:   "Verification code attempt window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LIMIT_CONFIRM_WINDOW"), toml.TOML("limits.confirm_window", configFile)),
		},
		&cli.IntFlag{
			Name:    "limit-resend-max",
			Value:   5,
			Usage:   "Verification code sends per email within the resend window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LIMIT_RESEND_MAX"), toml.TOML("limits.resend_max", configFile)),
		},
		&cli.DurationFlag{
			Name:    "limit-resend-window",
			Value:   time.Hour,
			Usage:   "Verification code send window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LIMIT_RESEND_WINDOW"), toml.TOML("limits.resend_window", configFile)),
		},
	}
}
