// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// LogType tells whether the user or the system performed a logged action.
type LogType string

const (
	LogTypeUser   LogType = "user"
	LogTypeSystem LogType = "system"
)

// ActivityLogEntry is one row of an account's append-only audit trail.
type ActivityLogEntry struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"-"`
	Type        LogType   `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	CreatedAt   Timestamp `db:"created_at" json:"created_at"`
}
