// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// VerificationCode is the single pending one-time code of an account.
// Only the SHA-256 hash of the code is stored.
type VerificationCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	Purpose   string    `db:"purpose" json:"purpose"`
	CodeHash  string    `db:"code_hash" json:"-"`
	Target    string    `db:"target" json:"target,omitempty"` // new address during an email change
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
	ExpiresAt Timestamp `db:"expires_at" json:"expires_at"`
}
