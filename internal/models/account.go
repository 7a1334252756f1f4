// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"net/mail"
	"strings"
)

// Account is a registered identity. Verified and Active flip together when
// the sign-up code is confirmed.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64     `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	Nickname       string    `db:"nickname" json:"nickname"`
	Verified       bool      `db:"verified" json:"verified"`
	Active         bool      `db:"active" json:"active"`
	SessionVersion int       `db:"session_version" json:"-"`
	CreatedAt      Timestamp `db:"created_at" json:"created_at"`
}

// NormalizeEmail collapses inner whitespace, trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.Join(strings.Fields(email), " "))
}

// NicknameFromEmail returns the local part of an address.
func NicknameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return email
	}
	return local
}

// ValidEmail reports whether email is a bare address without display name.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
