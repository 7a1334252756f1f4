// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package signup creates accounts and activates them once the emailed
// verification code is confirmed.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
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

const purpose = verification.PurposeSignUp

var (
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrEmailTaken           = errors.New("email already registered")
	ErrNoPendingSignUp      = errors.New("no pending sign-up")
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

// Params holds the parameters of a sign-up request
type Params struct {
	Email        string
	Password     string
	CurrentToken string
}

// Initiate creates an inactive account and mails it a verification code.
// The account is removed again if the mail cannot be sent. It returns the
// normalized email.
func (s *Service) Initiate(ctx context.Context, params Params) (string, error) {
	if auth.RejectAuthenticated(s.sessions, params.CurrentToken) {
		return "", apperr.Validation(i18n.MsgLogoutFirstSignUp, ErrAlreadyAuthenticated)
	}

	addr := models.NormalizeEmail(params.Email)
	if !models.ValidEmail(addr) {
		return "", apperr.Validation(i18n.MsgInvalidEmailFormat, ErrInvalidEmail)
	}

	if result := s.validator.Validate(params.Password); !result.Valid {
		slog.Info("signup_rejected", "email", addr, "rules", result.Codes())
		return "", apperr.Validation(i18n.MsgWeakPassword, auth.ErrWeakPassword)
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return "", apperr.Storage(err)
	}

	now := s.clock.Now()
	account := &models.Account{
		Email:        addr,
		PasswordHash: hash,
		Nickname:     models.NicknameFromEmail(addr),
		CreatedAt:    models.NewTimestamp(now),
	}

	var code string
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.AddActivityLog(ctx, account.ID, models.LogTypeUser, "User signed up to the system", now); err != nil {
			return err
		}
		var issueErr error
		code, issueErr = s.codes.Issue(ctx, tx, account.ID, purpose, verification.IssueOptions{})
		return issueErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", apperr.Conflict(i18n.MsgEmailTaken, fmt.Errorf("%w: %s", ErrEmailTaken, addr))
		}
		return "", apperr.From(err)
	}

	slog.Info("signup_initiated", "account_id", account.ID, "email", addr)

	if err := s.send(ctx, addr, code); err != nil {
		if delErr := s.repo.DeleteAccount(ctx, account.ID); delErr != nil {
			slog.Error("signup_compensation_failed", "account_id", account.ID, "error", delErr)
		}
		return "", err
	}

	if err := s.codes.LogDelivered(ctx, s.repo, account.ID, purpose); err != nil {
		return "", err
	}
	return addr, nil
}

// Reset discards an unconfirmed sign-up. Verified accounts are never
// touched.
func (s *Service) Reset(ctx context.Context, addr string) error {
	addr = models.NormalizeEmail(addr)
	deleted, err := s.repo.DeletePendingAccount(ctx, addr)
	if err != nil {
		return apperr.Storage(err)
	}
	if !deleted {
		return apperr.NotFound(i18n.MsgNoPendingSignUp, ErrNoPendingSignUp)
	}
	slog.Info("signup_reset", "email", addr)
	return nil
}

// ResendCode replaces the pending code and mails the new one.
func (s *Service) ResendCode(ctx context.Context, addr string) (string, error) {
	account, err := s.pending(ctx, addr)
	if err != nil {
		return "", err
	}

	if !s.limiter.Allow(ctx, s.rules.Resend, "resend:"+string(purpose)+":"+account.Email) {
		return "", apperr.RateLimited(fmt.Errorf("too many code requests for %s", account.Email))
	}

	code, err := s.codes.Issue(ctx, s.repo, account.ID, purpose, verification.IssueOptions{Resend: true})
	if err != nil {
		return "", err
	}
	if err := s.send(ctx, account.Email, code); err != nil {
		return "", err
	}
	if err := s.codes.LogDelivered(ctx, s.repo, account.ID, purpose); err != nil {
		return "", err
	}
	return account.Email, nil
}

// RemoveExpiredCode discards a code whose timer ran out on the client.
func (s *Service) RemoveExpiredCode(ctx context.Context, addr string) error {
	return s.invalidate(ctx, addr, verification.ReasonExpire)
}

// Cancel discards the pending code on user request.
func (s *Service) Cancel(ctx context.Context, addr string) error {
	return s.invalidate(ctx, addr, verification.ReasonCancel)
}

func (s *Service) invalidate(ctx context.Context, addr string, reason verification.Reason) error {
	account, err := s.pending(ctx, addr)
	if err != nil {
		return err
	}
	return s.codes.Invalidate(ctx, s.repo, account.ID, purpose, reason)
}

// Confirm activates the account the code was issued for. This is the only
// way an account becomes active.
func (s *Service) Confirm(ctx context.Context, addr, code string) error {
	addr = models.NormalizeEmail(addr)
	if !s.limiter.Allow(ctx, s.rules.Confirm, "confirm:"+string(purpose)+":"+addr) {
		return apperr.RateLimited(fmt.Errorf("too many code submissions for %s", addr))
	}

	match, err := s.codes.Verify(ctx, s.repo, addr, code, purpose)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.ActivateAccount(ctx, match.AccountID); err != nil {
			return err
		}
		return s.codes.Consume(ctx, tx, match.AccountID, purpose)
	})
	if err != nil {
		return apperr.Storage(err)
	}

	slog.Info("signup_verified", "account_id", match.AccountID)
	return nil
}

func (s *Service) pending(ctx context.Context, addr string) (*models.Account, error) {
	addr = models.NormalizeEmail(addr)
	account, err := s.repo.GetPendingAccountByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(i18n.MsgNoPendingSignUp, fmt.Errorf("%w: %s", ErrNoPendingSignUp, addr))
		}
		return nil, apperr.Storage(err)
	}
	return account, nil
}

func (s *Service) send(ctx context.Context, to, code string) error {
	msg, err := email.CodeMessage(ctx, to, string(purpose), code, s.codes.TTL())
	if err != nil {
		return apperr.Delivery(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.Error("mail_send_failed", "purpose", purpose, "to", to, "error", err)
		return apperr.Delivery(err)
	}
	return nil
}
