// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCode(accountID int64, purpose, hash string, createdAt time.Time) *models.VerificationCode {
	return &models.VerificationCode{
		AccountID: accountID,
		Purpose:   purpose,
		CodeHash:  hash,
		CreatedAt: models.NewTimestamp(createdAt),
		ExpiresAt: models.NewTimestamp(createdAt.Add(testutil.CodeTTL)),
	}
}

func TestReplaceVerificationCode_KeepsOneRow(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	account := testutil.NewPendingAccount(t, repo, "pending@example.com")

	require.NoError(t, repo.ReplaceVerificationCode(ctx, newCode(account.ID, "sign_up", "first", testutil.Now)))
	require.NoError(t, repo.ReplaceVerificationCode(ctx, newCode(account.ID, "sign_up", "second", testutil.Now)))

	count, err := repo.CountVerificationCodes(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	code, err := repo.GetVerificationCode(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", code.CodeHash)
	assert.True(t, testutil.Now.Add(testutil.CodeTTL).Equal(code.ExpiresAt.Time))
}

func TestFindVerificationMatches(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	account := testutil.NewTestAccount(t, repo, "reader@example.com")
	code := newCode(account.ID, "email_change", "hash", testutil.Now)
	code.Target = "next@example.com"
	require.NoError(t, repo.ReplaceVerificationCode(ctx, code))

	matches, err := repo.FindVerificationMatches(ctx, account.Email, "hash", "email_change", testutil.Now)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, account.ID, matches[0].AccountID)
	assert.Equal(t, "next@example.com", matches[0].Target)

	tests := []struct {
		name    string
		email   string
		hash    string
		purpose string
		now     time.Time
	}{
		{"wrong hash", account.Email, "other", "email_change", testutil.Now},
		{"wrong email", "someone@example.com", "hash", "email_change", testutil.Now},
		{"wrong purpose", account.Email, "hash", "sign_up", testutil.Now},
		{"expired", account.Email, "hash", "email_change", testutil.Now.Add(testutil.CodeTTL)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := repo.FindVerificationMatches(ctx, tt.email, tt.hash, tt.purpose, tt.now)
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestDeleteVerificationCodes(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	account := testutil.NewPendingAccount(t, repo, "pending@example.com")
	require.NoError(t, repo.ReplaceVerificationCode(ctx, newCode(account.ID, "sign_up", "h", testutil.Now)))

	require.NoError(t, repo.DeleteVerificationCodes(ctx, account.ID))

	_, err := repo.GetVerificationCode(ctx, account.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteExpiredVerificationCodes(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	old := testutil.NewPendingAccount(t, repo, "old@example.com")
	fresh := testutil.NewPendingAccount(t, repo, "fresh@example.com")
	require.NoError(t, repo.ReplaceVerificationCode(ctx, newCode(old.ID, "sign_up", "a", testutil.Now.Add(-time.Hour))))
	require.NoError(t, repo.ReplaceVerificationCode(ctx, newCode(fresh.ID, "sign_up", "b", testutil.Now)))

	n, err := repo.DeleteExpiredVerificationCodes(ctx, testutil.Now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetVerificationCode(ctx, fresh.ID)
	assert.NoError(t, err)
}
