// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification issues and checks the one-time codes behind sign-up,
// password recovery and email change.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
)

const (
	// CodeLength is the number of digits of a code.
	CodeLength = 6
	// CodeTTL is how long an issued code stays valid.
	CodeTTL = 10 * time.Minute
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrUnknownPurpose  = errors.New("unknown verification purpose")
)

// IssueOptions refine Issue.
type IssueOptions struct {
	// Target is the address a code proves control of, if it differs from
	// the account email.
	Target string
	// Resend logs the issuance as a user requested resend.
	Resend bool
}

// Match is the account a submitted code belongs to.
type Match struct {
	AccountID int64
	Email     string
	Target    string
}

// Engine manages verification codes. It holds no state besides the clock;
// every call takes the repository to run on, so a transaction-bound
// repository makes the engine join that transaction.
type Engine struct {
	clock    clock.Clock
	ttl      time.Duration
	generate func() (string, error)
}

// NewEngine creates an Engine with crypto/rand generated codes.
func NewEngine(clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{clock: clk, ttl: CodeTTL, generate: GenerateCode}
}

// TTL returns the validity window of issued codes.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// Issue replaces the pending code of an account with a fresh one and
// records it in the activity log. It returns the plain code for delivery;
// only its hash is stored.
func (e *Engine) Issue(ctx context.Context, repo *repository.Repository, accountID int64, purpose Purpose, opts IssueOptions) (string, error) {
	p, ok := phrasings[purpose]
	if !ok {
		return "", apperr.Storage(fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose))
	}

	code, err := e.generate()
	if err != nil {
		return "", apperr.Storage(fmt.Errorf("generating code: %w", err))
	}

	now := e.clock.Now()
	log := p.Issued
	if opts.Resend {
		log = p.Resent
	}

	err = repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.GetAccountByID(ctx, accountID); err != nil {
			return err
		}
		if err := tx.ReplaceVerificationCode(ctx, &models.VerificationCode{
			AccountID: accountID,
			Purpose:   string(purpose),
			CodeHash:  HashCode(code),
			Target:    opts.Target,
			CreatedAt: models.NewTimestamp(now),
			ExpiresAt: models.NewTimestamp(now.Add(e.ttl)),
		}); err != nil {
			return err
		}
		return tx.AddActivityLog(ctx, accountID, log.Type, log.Description, now)
	})
	if err != nil {
		return "", accountError(err)
	}

	slog.Info("code_issued", "account_id", accountID, "purpose", purpose, "resend", opts.Resend)
	return code, nil
}

// Verify finds the account whose unexpired code for purpose equals code.
// Exactly one account must match. The code is left in place.
func (e *Engine) Verify(ctx context.Context, repo *repository.Repository, email, code string, purpose Purpose) (*Match, error) {
	code = strings.TrimSpace(code)
	if !wellFormed(code) {
		return nil, apperr.Validation(i18n.MsgInvalidCode, ErrInvalidCode)
	}

	matches, err := repo.FindVerificationMatches(ctx, models.NormalizeEmail(email), HashCode(code), string(purpose), e.clock.Now())
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if len(matches) != 1 {
		slog.Info("code_rejected", "email", email, "purpose", purpose, "matches", len(matches))
		return nil, apperr.Validation(i18n.MsgInvalidCode, ErrInvalidCode)
	}

	m := matches[0]
	return &Match{AccountID: m.AccountID, Email: m.Email, Target: m.Target}, nil
}

// Invalidate discards the pending code of an account. The reason only
// changes the audit entry.
func (e *Engine) Invalidate(ctx context.Context, repo *repository.Repository, accountID int64, purpose Purpose, reason Reason) error {
	p, ok := phrasings[purpose]
	if !ok {
		return apperr.Storage(fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose))
	}

	var log entry
	switch reason {
	case ReasonExpire:
		log = p.Expired
	case ReasonCancel:
		log = p.Canceled
	default:
		return apperr.Validation(i18n.MsgInvalidCancelReason, fmt.Errorf("unknown reason %q", reason))
	}

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.GetAccountByID(ctx, accountID); err != nil {
			return err
		}
		if err := tx.DeleteVerificationCodes(ctx, accountID); err != nil {
			return err
		}
		return tx.AddActivityLog(ctx, accountID, log.Type, log.Description, e.clock.Now())
	})
	if err != nil {
		return accountError(err)
	}

	slog.Info("code_invalidated", "account_id", accountID, "purpose", purpose, "reason", reason)
	return nil
}

// Consume removes the codes of a verified account and records the
// verification. Callers run it inside the transaction that applies the
// outcome of the verification.
func (e *Engine) Consume(ctx context.Context, repo *repository.Repository, accountID int64, purpose Purpose) error {
	p, ok := phrasings[purpose]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
	if err := repo.DeleteVerificationCodes(ctx, accountID); err != nil {
		return err
	}
	return repo.AddActivityLog(ctx, accountID, p.Verified.Type, p.Verified.Description, e.clock.Now())
}

// LogDelivered records that the code mail left the system.
func (e *Engine) LogDelivered(ctx context.Context, repo *repository.Repository, accountID int64, purpose Purpose) error {
	p, ok := phrasings[purpose]
	if !ok {
		return apperr.Storage(fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose))
	}
	if err := repo.AddActivityLog(ctx, accountID, p.Sent.Type, p.Sent.Description, e.clock.Now()); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// PruneExpired deletes every code that can no longer be verified and
// returns how many were removed.
func (e *Engine) PruneExpired(ctx context.Context, repo *repository.Repository) (int64, error) {
	n, err := repo.DeleteExpiredVerificationCodes(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("pruning verification codes: %w", err)
	}
	return n, nil
}

func accountError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(i18n.MsgInvalidEmail, fmt.Errorf("%w: %w", ErrAccountNotFound, err))
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Storage(err)
}

// HashCode returns the stored form of a code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// GenerateCode returns CodeLength uniformly random digits.
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)

	ten := big.NewInt(10)
	for range CodeLength {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
