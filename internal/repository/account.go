// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/readinglog/internal/models"
)

const accountColumns = `id, email, password_hash, nickname, verified, active, session_version, created_at`

// CreateAccount inserts a new account and sets its ID.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.SessionVersion == 0 {
		account.SessionVersion = 1
	}
	return r.get(ctx, &account.ID,
		`INSERT INTO accounts (email, password_hash, nickname, verified, active, session_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		account.Email, account.PasswordHash, account.Nickname,
		account.Verified, account.Active, account.SessionVersion, account.CreatedAt)
}

// GetAccountByID retrieves an account by ID.
func (r *Repository) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	if err := r.get(ctx, &account, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByEmail retrieves an account in any state by its normalized email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.get(ctx, &account, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetActiveAccountByEmail retrieves an account that may log in.
func (r *Repository) GetActiveAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.get(ctx, &account,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? AND active = ?`, email, true)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetPendingAccountByEmail retrieves an account still waiting for its
// sign-up code.
func (r *Repository) GetPendingAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.get(ctx, &account,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? AND verified = ? AND active = ?`,
		email, false, false)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// EmailTaken reports whether any account uses email.
func (r *Repository) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.get(ctx, &count, `SELECT count(*) FROM accounts WHERE email = ?`, email); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ActivateAccount marks an account verified and active.
func (r *Repository) ActivateAccount(ctx context.Context, id int64) error {
	n, err := r.exec(ctx, `UPDATE accounts SET verified = ?, active = ? WHERE id = ?`, true, true, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAccountEmail changes the email and nickname and invalidates issued
// session tokens.
func (r *Repository) UpdateAccountEmail(ctx context.Context, id int64, email, nickname string) error {
	n, err := r.exec(ctx,
		`UPDATE accounts SET email = ?, nickname = ?, session_version = session_version + 1 WHERE id = ?`,
		email, nickname, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAccountPassword stores a new password hash and invalidates issued
// session tokens.
func (r *Repository) UpdateAccountPassword(ctx context.Context, id int64, passwordHash string) error {
	n, err := r.exec(ctx,
		`UPDATE accounts SET password_hash = ?, session_version = session_version + 1 WHERE id = ?`,
		passwordHash, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes an account with its codes and activity log.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

// DeletePendingAccount removes an unverified, inactive account by email.
// Verified accounts are never matched.
func (r *Repository) DeletePendingAccount(ctx context.Context, email string) (bool, error) {
	n, err := r.exec(ctx,
		`DELETE FROM accounts WHERE email = ? AND verified = ? AND active = ?`, email, false, false)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
