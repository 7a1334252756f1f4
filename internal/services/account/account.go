// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account implements the settings of a signed-in account: email
// change through a verification code, password change and the activity
// log. The account is always taken from the session identity.
package account

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
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/email"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
)

const purpose = verification.PurposeEmailChange

// PageSize is the number of activity log entries per page.
const PageSize = 10

var (
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrEmailTaken        = errors.New("email already registered")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrTargetMismatch    = errors.New("code was issued for another address")
)

type Service struct {
	repo      *repository.Repository
	codes     *verification.Engine
	mailer    email.Mailer
	sessions  *session.Manager
	validator *auth.PasswordValidator
	limiter   *limiter.Limiter
	rules     limiter.Rules
	clock     clock.Clock
}

func NewService(
	repo *repository.Repository,
	codes *verification.Engine,
	mailer email.Mailer,
	sessions *session.Manager,
	lim *limiter.Limiter,
	rules limiter.Rules,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		repo:      repo,
		codes:     codes,
		mailer:    mailer,
		sessions:  sessions,
		validator: auth.DefaultPasswordValidator(),
		limiter:   lim,
		rules:     rules,
		clock:     clk,
	}
}

// Email returns the current email of the account.
func (s *Service) Email(ctx context.Context, id *authctx.Identity) (string, error) {
	account, err := s.current(ctx, id)
	if err != nil {
		return "", err
	}
	return account.Email, nil
}

// RequestChange mails a code to newEmail. Confirming it moves the account
// to that address.
func (s *Service) RequestChange(ctx context.Context, id *authctx.Identity, newEmail string) (string, error) {
	return s.issue(ctx, id, newEmail, false)
}

// Resend replaces the pending code and mails the new one to newEmail.
func (s *Service) Resend(ctx context.Context, id *authctx.Identity, newEmail string) (string, error) {
	return s.issue(ctx, id, newEmail, true)
}

// Cancel discards the pending code.
func (s *Service) Cancel(ctx context.Context, id *authctx.Identity, reason verification.Reason) error {
	account, err := s.current(ctx, id)
	if err != nil {
		return err
	}
	return s.codes.Invalidate(ctx, s.repo, account.ID, purpose, reason)
}

// ConfirmChangeResult carries the session cookie bound to the new email.
type ConfirmChangeResult struct {
	Email  string
	Cookie *http.Cookie
}

// Confirm moves the account to newEmail if code was issued to the account
// for that address. Tokens issued before become stale.
func (s *Service) Confirm(ctx context.Context, id *authctx.Identity, newEmail, code string) (*ConfirmChangeResult, error) {
	account, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}

	target := models.NormalizeEmail(newEmail)
	if !s.limiter.Allow(ctx, s.rules.Confirm, "confirm:"+string(purpose)+":"+account.Email) {
		return nil, apperr.RateLimited(fmt.Errorf("too many code submissions for %s", account.Email))
	}

	match, err := s.codes.Verify(ctx, s.repo, account.Email, code, purpose)
	if err != nil {
		return nil, err
	}
	if match.AccountID != account.ID || match.Target != target {
		slog.Warn("email_change_rejected", "account_id", account.ID, "reason", "target_mismatch")
		return nil, apperr.Validation(i18n.MsgInvalidCode, fmt.Errorf("%w: %w", verification.ErrInvalidCode, ErrTargetMismatch))
	}

	var updated *models.Account
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateAccountEmail(ctx, account.ID, target, models.NicknameFromEmail(target)); err != nil {
			return err
		}
		if err := s.codes.Consume(ctx, tx, account.ID, purpose); err != nil {
			return err
		}
		var getErr error
		updated, getErr = tx.GetAccountByID(ctx, account.ID)
		return getErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict(i18n.MsgEmailTaken, fmt.Errorf("%w: %s", ErrEmailTaken, target))
		}
		return nil, apperr.Storage(err)
	}

	token, err := s.sessions.Issue(updated.ID, updated.Email, updated.SessionVersion)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	slog.Info("email_changed", "account_id", updated.ID)
	return &ConfirmChangeResult{Email: updated.Email, Cookie: s.sessions.Cookie(token)}, nil
}

// ChangePassword replaces the password after checking the current one and
// returns a fresh session cookie. Other sessions become stale.
func (s *Service) ChangePassword(ctx context.Context, id *authctx.Identity, oldPassword, newPassword string) (*http.Cookie, error) {
	account, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}

	if !auth.CheckPassword(account.PasswordHash, oldPassword) {
		slog.Warn("password_change_rejected", "account_id", account.ID, "reason", "incorrect_password")
		return nil, apperr.Validation(i18n.MsgIncorrectPassword, ErrIncorrectPassword)
	}

	if result := s.validator.Validate(newPassword); !result.Valid {
		return nil, apperr.Validation(i18n.MsgWeakPassword, auth.ErrWeakPassword)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	var updated *models.Account
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateAccountPassword(ctx, account.ID, hash); err != nil {
			return err
		}
		if err := tx.AddActivityLog(ctx, account.ID, models.LogTypeUser,
			"User successfully updated their password", s.clock.Now()); err != nil {
			return err
		}
		var getErr error
		updated, getErr = tx.GetAccountByID(ctx, account.ID)
		return getErr
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}

	token, err := s.sessions.Issue(updated.ID, updated.Email, updated.SessionVersion)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	slog.Info("password_changed", "account_id", updated.ID)
	return s.sessions.Cookie(token), nil
}

// ActivityPage is one page of the activity log, newest first.
type ActivityPage struct {
	Logs        []models.ActivityLogEntry `json:"logs"`
	TotalLogs   int64                     `json:"total_logs"`
	TotalPages  int64                     `json:"total_pages"`
	CurrentPage int                       `json:"current_page"`
}

// ActivityLogs returns page of the account's activity log. Pages start at 1.
func (s *Service) ActivityLogs(ctx context.Context, id *authctx.Identity, page int) (*ActivityPage, error) {
	account, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	total, err := s.repo.CountActivityLogs(ctx, account.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	logs, err := s.repo.ListActivityLogs(ctx, account.ID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	return &ActivityPage{
		Logs:        logs,
		TotalLogs:   total,
		TotalPages:  (total + PageSize - 1) / PageSize,
		CurrentPage: page,
	}, nil
}

func (s *Service) issue(ctx context.Context, id *authctx.Identity, newEmail string, resend bool) (string, error) {
	account, err := s.current(ctx, id)
	if err != nil {
		return "", err
	}

	target := models.NormalizeEmail(newEmail)
	if !models.ValidEmail(target) {
		return "", apperr.Validation(i18n.MsgInvalidEmailFormat, ErrInvalidEmail)
	}

	taken, err := s.repo.EmailTaken(ctx, target)
	if err != nil {
		return "", apperr.Storage(err)
	}
	if taken {
		return "", apperr.Conflict(i18n.MsgEmailTaken, fmt.Errorf("%w: %s", ErrEmailTaken, target))
	}

	if !s.limiter.Allow(ctx, s.rules.Resend, "resend:"+string(purpose)+":"+account.Email) {
		return "", apperr.RateLimited(fmt.Errorf("too many code requests for %s", account.Email))
	}

	code, err := s.codes.Issue(ctx, s.repo, account.ID, purpose, verification.IssueOptions{Target: target, Resend: resend})
	if err != nil {
		return "", err
	}

	msg, err := email.CodeMessage(ctx, target, string(purpose), code, s.codes.TTL())
	if err != nil {
		return "", apperr.Delivery(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.Error("mail_send_failed", "purpose", purpose, "account_id", account.ID, "error", err)
		return "", apperr.Delivery(err)
	}

	if err := s.codes.LogDelivered(ctx, s.repo, account.ID, purpose); err != nil {
		return "", err
	}
	return target, nil
}

func (s *Service) current(ctx context.Context, id *authctx.Identity) (*models.Account, error) {
	if id == nil {
		return nil, apperr.Unauthorized(i18n.MsgSessionInvalid, auth.ErrNoToken)
	}
	account, err := s.repo.GetAccountByID(ctx, id.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized(i18n.MsgSessionInvalid, auth.ErrStaleToken)
		}
		return nil, apperr.Storage(err)
	}
	return account, nil
}
