// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements login, logout and session checks, and the
// password policy shared by every flow that accepts a new password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	authctx "codeberg.org/oliverandrich/readinglog/internal/auth"
	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNoToken              = errors.New("no session token")
	ErrStaleToken           = errors.New("session token no longer matches account")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), BcryptCost)

type Service struct {
	repo     *repository.Repository
	sessions *session.Manager
	limiter  *limiter.Limiter
	rule     limiter.Rule
	clock    clock.Clock
}

func NewService(repo *repository.Repository, sessions *session.Manager, lim *limiter.Limiter, rules limiter.Rules, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		limiter:  lim,
		rule:     rules.Login,
		clock:    clk,
	}
}

// LoginParams holds the parameters of a login attempt
type LoginParams struct {
	Email        string
	Password     string
	CurrentToken string // session cookie sent with the request, if any
}

// LoginResult is a successful login.
type LoginResult struct {
	AccountID int64
	Cookie    *http.Cookie
}

// Login authenticates an active account and issues a session cookie.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	if RejectAuthenticated(s.sessions, params.CurrentToken) {
		return nil, apperr.Validation(i18n.MsgLogoutFirstLogin, ErrAlreadyAuthenticated)
	}

	email := models.NormalizeEmail(params.Email)
	if email == "" || params.Password == "" {
		return nil, apperr.Validation(i18n.MsgInvalidRequest, errors.New("email and password are required"))
	}

	key := "login:" + email
	if s.limiter.Blocked(ctx, s.rule, key) {
		slog.Warn("login_rate_limited", "email", email)
		return nil, apperr.RateLimited(fmt.Errorf("too many failed logins for %s", email))
	}

	account, err := s.repo.GetActiveAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(params.Password))
			s.limiter.Allow(ctx, s.rule, key)
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, apperr.Unauthorized(i18n.MsgInvalidCredentials, ErrInvalidCredentials)
		}
		return nil, apperr.Storage(fmt.Errorf("failed to get account: %w", err))
	}

	if !CheckPassword(account.PasswordHash, params.Password) {
		account.PasswordHash = ""
		s.limiter.Allow(ctx, s.rule, key)
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, apperr.Unauthorized(i18n.MsgInvalidCredentials, ErrInvalidCredentials)
	}
	s.limiter.Reset(ctx, key)

	token, err := s.sessions.Issue(account.ID, account.Email, account.SessionVersion)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	if err := s.repo.AddActivityLog(ctx, account.ID, models.LogTypeUser, "User logged in", s.clock.Now()); err != nil {
		return nil, apperr.Storage(err)
	}

	slog.Info("login_success", "account_id", account.ID)
	return &LoginResult{AccountID: account.ID, Cookie: s.sessions.Cookie(token)}, nil
}

// Logout ends the session carried by token and returns the cookie that
// clears it.
func (s *Service) Logout(ctx context.Context, token string) (*http.Cookie, error) {
	if token == "" {
		return nil, apperr.Unauthorized(i18n.MsgNoToken, ErrNoToken)
	}

	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, apperr.Unauthorized(i18n.MsgSessionInvalid, err)
	}

	if err := s.repo.AddActivityLog(ctx, claims.ID, models.LogTypeUser, "User logged out", s.clock.Now()); err != nil {
		slog.Error("logout_log_failed", "account_id", claims.ID, "error", err)
	}

	slog.Info("logout", "account_id", claims.ID)
	return s.sessions.ClearCookie(), nil
}

// Authenticate resolves token to the identity it was issued for. Tokens
// of removed or deactivated accounts, and tokens minted before the last
// email or password change, are rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (*authctx.Identity, error) {
	identity, _, err := s.authenticate(ctx, token)
	return identity, err
}

func (s *Service) authenticate(ctx context.Context, token string) (*authctx.Identity, *session.Claims, error) {
	if token == "" {
		return nil, nil, apperr.Unauthorized(i18n.MsgNoToken, ErrNoToken)
	}

	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, nil, apperr.Unauthorized(i18n.MsgSessionInvalid, err)
	}

	account, err := s.repo.GetAccountByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.Unauthorized(i18n.MsgSessionInvalid, ErrStaleToken)
		}
		return nil, nil, apperr.Storage(err)
	}
	if !account.Active || account.SessionVersion != claims.Version || account.Email != claims.Email {
		return nil, nil, apperr.Unauthorized(i18n.MsgSessionInvalid, ErrStaleToken)
	}

	return &authctx.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Version:   account.SessionVersion,
	}, claims, nil
}

// GateResult is the outcome of VerifyAndRefresh. Expired is set when the
// route needs a session and the caller has none.
type GateResult struct {
	Expired  bool
	Identity *authctx.Identity
	Cookie   *http.Cookie
}

// VerifyAndRefresh decides whether the caller may open route. Routes that
// need a session get a sliding expiry through a refreshed cookie.
func (s *Service) VerifyAndRefresh(ctx context.Context, token, route string, requiresAuth bool) (*GateResult, error) {
	if !requiresAuth {
		return &GateResult{}, nil
	}

	identity, claims, err := s.authenticate(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			slog.Debug("gate_rejected", "route", route, "error", err)
			return &GateResult{Expired: true}, nil
		}
		return nil, err
	}

	refreshed, err := s.sessions.Refresh(claims)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	return &GateResult{Identity: identity, Cookie: s.sessions.Cookie(refreshed)}, nil
}

// RejectAuthenticated reports whether token is a valid session, in which
// case flows for anonymous callers must refuse to start.
func RejectAuthenticated(sessions *session.Manager, token string) bool {
	if token == "" {
		return false
	}
	_, err := sessions.Verify(token)
	return err == nil
}
