// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/models"
)

// CodeMatch is an account whose pending code matched a submission.
type CodeMatch struct {
	AccountID int64  `db:"account_id"`
	Email     string `db:"email"`
	Target    string `db:"target"`
}

// ReplaceVerificationCode stores code as the only pending code of its
// account, overwriting any previous one.
func (r *Repository) ReplaceVerificationCode(ctx context.Context, code *models.VerificationCode) error {
	return r.get(ctx, &code.ID,
		`INSERT INTO verification_codes (account_id, purpose, code_hash, target, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
		     purpose = excluded.purpose,
		     code_hash = excluded.code_hash,
		     target = excluded.target,
		     created_at = excluded.created_at,
		     expires_at = excluded.expires_at
		 RETURNING id`,
		code.AccountID, code.Purpose, code.CodeHash, code.Target, code.CreatedAt, code.ExpiresAt)
}

// FindVerificationMatches returns accounts whose unexpired code for purpose
// has the given hash. At most two rows are returned.
func (r *Repository) FindVerificationMatches(ctx context.Context, email, codeHash, purpose string, now time.Time) ([]CodeMatch, error) {
	var matches []CodeMatch
	err := r.sel(ctx, &matches,
		`SELECT a.id AS account_id, a.email, c.target
		 FROM accounts a
		 JOIN verification_codes c ON c.account_id = a.id
		 WHERE a.email = ? AND c.code_hash = ? AND c.purpose = ? AND c.expires_at > ?
		 LIMIT 2`,
		email, codeHash, purpose, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// GetVerificationCode returns the pending code of an account.
func (r *Repository) GetVerificationCode(ctx context.Context, accountID int64) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.get(ctx, &code,
		`SELECT id, account_id, purpose, code_hash, target, created_at, expires_at
		 FROM verification_codes WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// CountVerificationCodes returns how many codes an account holds.
func (r *Repository) CountVerificationCodes(ctx context.Context, accountID int64) (int, error) {
	var count int
	if err := r.get(ctx, &count, `SELECT count(*) FROM verification_codes WHERE account_id = ?`, accountID); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteVerificationCodes removes all codes of an account.
func (r *Repository) DeleteVerificationCodes(ctx context.Context, accountID int64) error {
	_, err := r.exec(ctx, `DELETE FROM verification_codes WHERE account_id = ?`, accountID)
	return err
}

// DeleteExpiredVerificationCodes removes codes that expired before now.
func (r *Repository) DeleteExpiredVerificationCodes(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM verification_codes WHERE expires_at <= ?`, now.UnixMilli())
}
