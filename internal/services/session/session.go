// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues and verifies the signed session tokens carried in
// the session cookie.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultLifetime is the validity window of a freshly issued token.
const DefaultLifetime = 8 * time.Hour

const minSecretLength = 32

// ErrInvalidToken is returned for tokens with a bad signature, a wrong
// algorithm, malformed claims or an elapsed expiry.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the identity carried by a session token.
type Claims struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Version int    `json:"sv"`
	jwt.RegisteredClaims
}

// Manager mints, verifies and refreshes HS256 session tokens.
type Manager struct {
	key        []byte
	cookieName string
	lifetime   time.Duration
	secure     bool
	clock      clock.Clock
	parser     *jwt.Parser
}

// NewManager creates a Manager from cfg. An empty secret is replaced by a
// random one unless cfg.Secure is set.
func NewManager(cfg *config.SessionConfig, clk clock.Clock) (*Manager, error) {
	key, err := decodeSecret(cfg.Secret, cfg.Secure)
	if err != nil {
		return nil, err
	}

	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	name := cfg.CookieName
	if name == "" {
		name = "token"
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &Manager{
		key:        key,
		cookieName: name,
		lifetime:   lifetime,
		secure:     cfg.Secure,
		clock:      clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(clk.Now),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func decodeSecret(secret string, required bool) ([]byte, error) {
	if secret == "" {
		if required {
			return nil, fmt.Errorf("session secret is required")
		}
		key := make([]byte, minSecretLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		slog.Warn("no session secret configured, generated a random one; sessions end on restart")
		return key, nil
	}

	key, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid session secret: %w", err)
	}
	if len(key) < minSecretLength {
		return nil, fmt.Errorf("invalid session secret: must be at least %d bytes", minSecretLength)
	}
	return key, nil
}

// Issue mints a token for the account.
func (m *Manager) Issue(accountID int64, email string, version int) (string, error) {
	now := m.clock.Now()
	claims := Claims{
		ID:      accountID,
		Email:   email,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var claims Claims
	parsed, err := m.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID <= 0 || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// Refresh re-issues a token with the same identity and a fresh window.
func (m *Manager) Refresh(claims *Claims) (string, error) {
	return m.Issue(claims.ID, claims.Email, claims.Version)
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Lifetime returns the validity window of issued tokens.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// TokenFromRequest returns the session cookie value, or "" if absent.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Cookie wraps token in a session cookie.
func (m *Manager) Cookie(token string) *http.Cookie {
	return m.cookie(m.cookieName, token, int(m.lifetime.Seconds()))
}

// ClearCookie returns a cookie that removes the session cookie. It carries
// the same attributes as Cookie, otherwise browsers keep the old one.
func (m *Manager) ClearCookie() *http.Cookie {
	return m.cookie(m.cookieName, "", -1)
}

// CookieFor builds another cookie with the attribute profile of the session
// cookie. A negative maxAge clears it.
func (m *Manager) CookieFor(name, value string, maxAge int) *http.Cookie {
	return m.cookie(name, value, maxAge)
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}
	// Production serves frontend and API from different origins over TLS.
	if m.secure {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
