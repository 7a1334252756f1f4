// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package recovery resets forgotten passwords through an emailed
// verification code.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/config"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/email"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
)

const purpose = verification.PurposeRecovery

var (
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrUnknownEmail         = errors.New("no active account for email")
)

// Service handles password recovery. It never creates or deletes
// accounts and never touches their verified or active flags.
type Service struct {
	repo      *repository.Repository
	codes     *verification.Engine
	mailer    email.Mailer
	sessions  *session.Manager
	grants    *grantCodec
	validator *auth.PasswordValidator
	limiter   *limiter.Limiter
	rules     limiter.Rules
	clock     clock.Clock
	uniform   bool
}

// NewService creates a recovery service.
func NewService(
	cfg *config.RecoveryConfig,
	repo *repository.Repository,
	codes *verification.Engine,
	mailer email.Mailer,
	sessions *session.Manager,
	lim *limiter.Limiter,
	rules limiter.Rules,
	clk clock.Clock,
	production bool,
) (*Service, error) {
	grants, err := newGrantCodec(cfg.GrantKey, cfg.GrantTTL, production)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		repo:      repo,
		codes:     codes,
		mailer:    mailer,
		sessions:  sessions,
		grants:    grants,
		validator: auth.DefaultPasswordValidator(),
		limiter:   lim,
		rules:     rules,
		clock:     clk,
		uniform:   cfg.UniformResponse,
	}, nil
}

// UniformResponse reports whether Initiate hides unknown emails.
func (s *Service) UniformResponse() bool {
	return s.uniform
}

// Initiate mails a recovery code to the account registered for addr and
// returns the normalized address. Unknown emails fail with a not found
// error unless uniform responses are enabled.
func (s *Service) Initiate(ctx context.Context, addr, currentToken string) (string, error) {
	if auth.RejectAuthenticated(s.sessions, currentToken) {
		return "", apperr.Validation(i18n.MsgLogoutFirstRecovery, ErrAlreadyAuthenticated)
	}

	addr = models.NormalizeEmail(addr)
	account, err := s.account(ctx, addr)
	if err != nil {
		if s.uniform && apperr.KindOf(err) == apperr.KindNotFound {
			slog.Info("recovery_unknown_email", "email", addr)
			return addr, nil
		}
		return "", err
	}

	if err := s.issue(ctx, account, false); err != nil {
		return "", err
	}
	return addr, nil
}

// Resend replaces the pending code and mails the new one.
func (s *Service) Resend(ctx context.Context, addr string) (string, error) {
	account, err := s.account(ctx, models.NormalizeEmail(addr))
	if err != nil {
		return "", err
	}
	if err := s.issue(ctx, account, true); err != nil {
		return "", err
	}
	return account.Email, nil
}

// Cancel discards the pending code.
func (s *Service) Cancel(ctx context.Context, addr string, reason verification.Reason) error {
	account, err := s.account(ctx, models.NormalizeEmail(addr))
	if err != nil {
		return err
	}
	return s.codes.Invalidate(ctx, s.repo, account.ID, purpose, reason)
}

// ConfirmResult carries the grant that allows choosing a new password.
type ConfirmResult struct {
	Email  string
	Grant  string
	Cookie *http.Cookie
}

// Confirm checks the code and issues a short-lived grant for
// SetNewPassword.
func (s *Service) Confirm(ctx context.Context, addr, code string) (*ConfirmResult, error) {
	addr = models.NormalizeEmail(addr)
	if !s.limiter.Allow(ctx, s.rules.Confirm, "confirm:"+string(purpose)+":"+addr) {
		return nil, apperr.RateLimited(fmt.Errorf("too many code submissions for %s", addr))
	}

	match, err := s.codes.Verify(ctx, s.repo, addr, code, purpose)
	if err != nil {
		return nil, err
	}

	var account *models.Account
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := s.codes.Consume(ctx, tx, match.AccountID, purpose); err != nil {
			return err
		}
		var getErr error
		account, getErr = tx.GetAccountByID(ctx, match.AccountID)
		return getErr
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	value, err := s.grants.encode(grant{
		Email:   account.Email,
		Version: account.SessionVersion,
		Expires: s.clock.Now().Add(s.grants.ttl).UnixMilli(),
	})
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("encoding recovery grant: %w", err))
	}

	slog.Info("recovery_verified", "account_id", account.ID)
	return &ConfirmResult{
		Email:  account.Email,
		Grant:  value,
		Cookie: s.sessions.CookieFor(GrantCookieName, value, int(s.grants.ttl.Seconds())),
	}, nil
}

// SetNewPassword stores a new password for addr. grantValue must come from
// a Confirm for the same account; it becomes void once the password is
// changed.
func (s *Service) SetNewPassword(ctx context.Context, addr, newPassword, grantValue string) error {
	addr = models.NormalizeEmail(addr)

	g, err := s.grants.decode(grantValue, s.clock.Now())
	if err != nil {
		return apperr.Unauthorized(i18n.MsgRecoveryNotVerified, err)
	}
	if g.Email != addr {
		return apperr.Unauthorized(i18n.MsgRecoveryNotVerified, fmt.Errorf("%w: email mismatch", ErrGrantInvalid))
	}

	if result := s.validator.Validate(newPassword); !result.Valid {
		slog.Info("recovery_password_rejected", "email", addr, "rules", result.Codes())
		return apperr.Validation(i18n.MsgWeakPassword, auth.ErrWeakPassword)
	}

	account, err := s.account(ctx, addr)
	if err != nil {
		return err
	}
	if account.SessionVersion != g.Version {
		return apperr.Unauthorized(i18n.MsgRecoveryNotVerified, fmt.Errorf("%w: already used", ErrGrantInvalid))
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Storage(err)
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateAccountPassword(ctx, account.ID, hash); err != nil {
			return err
		}
		return tx.AddActivityLog(ctx, account.ID, models.LogTypeUser,
			"User successfully changed their password", s.clock.Now())
	})
	if err != nil {
		return apperr.Storage(err)
	}

	slog.Info("recovery_password_changed", "account_id", account.ID)
	return nil
}

// ClearGrantCookie removes the grant cookie.
func (s *Service) ClearGrantCookie() *http.Cookie {
	return s.sessions.CookieFor(GrantCookieName, "", -1)
}

func (s *Service) account(ctx context.Context, addr string) (*models.Account, error) {
	account, err := s.repo.GetActiveAccountByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(i18n.MsgInvalidEmail, fmt.Errorf("%w: %s", ErrUnknownEmail, addr))
		}
		return nil, apperr.Storage(err)
	}
	return account, nil
}

func (s *Service) issue(ctx context.Context, account *models.Account, resend bool) error {
	if !s.limiter.Allow(ctx, s.rules.Resend, "resend:"+string(purpose)+":"+account.Email) {
		return apperr.RateLimited(fmt.Errorf("too many code requests for %s", account.Email))
	}

	code, err := s.codes.Issue(ctx, s.repo, account.ID, purpose, verification.IssueOptions{Resend: resend})
	if err != nil {
		return err
	}

	msg, err := email.CodeMessage(ctx, account.Email, string(purpose), code, s.codes.TTL())
	if err != nil {
		return apperr.Delivery(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.Error("mail_send_failed", "purpose", purpose, "account_id", account.ID, "error", err)
		return apperr.Delivery(err)
	}

	return s.codes.LogDelivered(ctx, s.repo, account.ID, purpose)
}
