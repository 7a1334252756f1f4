// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/config"
	"codeberg.org/oliverandrich/readinglog/internal/database"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/email"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword satisfies the password policy. Fixture accounts use it.
const TestPassword = "Abcdef1!"

// CodeTTL mirrors the validity window of verification codes.
const CodeTTL = 10 * time.Minute

// Now is the reference time of fixtures and fixed clocks.
var Now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// SessionSecret is a valid hex-encoded signing key.
const SessionSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// ErrMailer is returned by a failing Mailer.
var ErrMailer = errors.New("smtp unavailable")

func init() {
	// Mails and messages are rendered from the embedded translations.
	if err := i18n.Init(); err != nil {
		panic(err)
	}
}

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestAccount creates a verified, active account with TestPassword.
func NewTestAccount(t *testing.T, repo *repository.Repository, email string) *models.Account {
	t.Helper()
	return newAccount(t, repo, email, true)
}

// NewPendingAccount creates an account still waiting for its sign-up code.
func NewPendingAccount(t *testing.T, repo *repository.Repository, email string) *models.Account {
	t.Helper()
	return newAccount(t, repo, email, false)
}

func newAccount(t *testing.T, repo *repository.Repository, email string, active bool) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	account := &models.Account{
		Email:        email,
		PasswordHash: string(hash),
		Nickname:     models.NicknameFromEmail(email),
		Verified:     active,
		Active:       active,
		CreatedAt:    models.NewTimestamp(Now),
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

// NewSessionManager creates a development session manager on clk.
func NewSessionManager(t *testing.T, clk clock.Clock) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(&config.SessionConfig{
		CookieName: "token",
		Secret:     SessionSecret,
		Lifetime:   8 * time.Hour,
	}, clk)
	require.NoError(t, err)
	return mgr
}

// NewLimiter creates a limiter backed by an in-process Redis.
func NewLimiter(t *testing.T) (*limiter.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return limiter.New(client), mr
}

// Mailer records sent messages. Setting Err makes every send fail.
type Mailer struct {
	mu       sync.Mutex
	Err      error
	messages []email.Message
}

func (m *Mailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the sent messages.
func (m *Mailer) Messages() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.messages...)
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// LastCode extracts the verification code from the last sent message.
func (m *Mailer) LastCode(t *testing.T) string {
	t.Helper()
	msgs := m.Messages()
	require.NotEmpty(t, msgs, "no mail sent")
	code := codePattern.FindString(msgs[len(msgs)-1].Text)
	require.NotEmpty(t, code, "no code in mail")
	return code
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithCookie creates an Echo context carrying cookie.
func NewEchoContextWithCookie(e *echo.Echo, method, path string, body io.Reader, cookie *http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := NewEchoContext(e, method, path, body)
	if cookie != nil {
		c.Request().AddCookie(cookie)
	}
	return c, rec
}

// ResponseCookie returns the cookie named name set on rec, or nil.
func ResponseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
