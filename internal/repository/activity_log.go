// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/models"
)

// AddActivityLog appends an entry to an account's audit trail.
func (r *Repository) AddActivityLog(ctx context.Context, accountID int64, logType models.LogType, description string, at time.Time) error {
	_, err := r.exec(ctx,
		`INSERT INTO activity_log (account_id, type, description, created_at) VALUES (?, ?, ?, ?)`,
		accountID, string(logType), description, at.UnixMilli())
	return err
}

// ListActivityLogs returns an account's entries, newest first.
func (r *Repository) ListActivityLogs(ctx context.Context, accountID int64, limit, offset int) ([]models.ActivityLogEntry, error) {
	entries := []models.ActivityLogEntry{}
	err := r.sel(ctx, &entries,
		`SELECT id, account_id, type, description, created_at
		 FROM activity_log WHERE account_id = ?
		 ORDER BY id DESC LIMIT ? OFFSET ?`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CountActivityLogs returns the number of entries of an account.
func (r *Repository) CountActivityLogs(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	if err := r.get(ctx, &count, `SELECT count(*) FROM activity_log WHERE account_id = ?`, accountID); err != nil {
		return 0, err
	}
	return count, nil
}
