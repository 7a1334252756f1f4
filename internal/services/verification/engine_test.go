// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"codeberg.org/oliverandrich/readinglog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*verification.Engine, *repository.Repository, *clock.Fixed) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clk := clock.NewFixed(testutil.Now)
	return verification.NewEngine(clk), repo, clk
}

func lastLog(t *testing.T, repo *repository.Repository, accountID int64) models.ActivityLogEntry {
	t.Helper()
	logs, err := repo.ListActivityLogs(context.Background(), accountID, 1, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	return logs[0]
}

func TestGenerateCode(t *testing.T) {
	for range 50 {
		code, err := verification.GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestHashCode(t *testing.T) {
	assert.Equal(t, verification.HashCode("123456"), verification.HashCode("123456"))
	assert.NotEqual(t, verification.HashCode("123456"), verification.HashCode("123457"))
	assert.Len(t, verification.HashCode("123456"), 64)
}

func TestParseReason(t *testing.T) {
	r, ok := verification.ParseReason("expire")
	assert.True(t, ok)
	assert.Equal(t, verification.ReasonExpire, r)

	r, ok = verification.ParseReason("cancel")
	assert.True(t, ok)
	assert.Equal(t, verification.ReasonCancel, r)

	_, ok = verification.ParseReason("other")
	assert.False(t, ok)
}

func TestIssue_StoresHashAndLogs(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewPendingAccount(t, repo, "new@example.com")

	code, err := engine.Issue(ctx, repo, account.ID, verification.PurposeSignUp, verification.IssueOptions{})
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)

	stored, err := repo.GetVerificationCode(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, verification.HashCode(code), stored.CodeHash)
	assert.Equal(t, "sign_up", stored.Purpose)
	assert.True(t, testutil.Now.Add(verification.CodeTTL).Equal(stored.ExpiresAt.Time))

	entry := lastLog(t, repo, account.ID)
	assert.Equal(t, models.LogTypeSystem, entry.Type)
	assert.Equal(t, "System has created a verification code for the user", entry.Description)
}

func TestIssue_ResendLogsUserEntry(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewPendingAccount(t, repo, "new@example.com")

	_, err := engine.Issue(ctx, repo, account.ID, verification.PurposeSignUp, verification.IssueOptions{Resend: true})
	require.NoError(t, err)

	entry := lastLog(t, repo, account.ID)
	assert.Equal(t, models.LogTypeUser, entry.Type)
	assert.Equal(t, "User resent a new verification code during sign-up", entry.Description)
}

func TestIssue_SecondCodeReplacesFirst(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewPendingAccount(t, repo, "new@example.com")

	first, err := engine.Issue(ctx, repo, account.ID, verification.PurposeSignUp, verification.IssueOptions{})
	require.NoError(t, err)
	second, err := engine.Issue(ctx, repo, account.ID, verification.PurposeSignUp, verification.IssueOptions{Resend: true})
	require.NoError(t, err)

	count, err := repo.CountVerificationCodes(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	if first != second {
		_, err = engine.Verify(ctx, repo, account.Email, first, verification.PurposeSignUp)
		assert.ErrorIs(t, err, verification.ErrInvalidCode)
	}

	match, err := engine.Verify(ctx, repo, account.Email, second, verification.PurposeSignUp)
	require.NoError(t, err)
	assert.Equal(t, account.ID, match.AccountID)
}

func TestIssue_UnknownAccount(t *testing.T) {
	engine, repo, _ := setup(t)

	_, err := engine.Issue(context.Background(), repo, 999, verification.PurposeSignUp, verification.IssueOptions{})

	assert.ErrorIs(t, err, verification.ErrAccountNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestIssue_UnknownPurpose(t *testing.T) {
	engine, repo, _ := setup(t)
	account := testutil.NewPendingAccount(t, repo, "new@example.com")

	_, err := engine.Issue(context.Background(), repo, account.ID, verification.Purpose("other"), verification.IssueOptions{})

	assert.ErrorIs(t, err, verification.ErrUnknownPurpose)
}

func TestIssue_JoinsTransaction(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewPendingAccount(t, repo, "new@example.com")

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := engine.Issue(ctx, tx, account.ID, verification.PurposeSignUp, verification.IssueOptions{}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	count, err := repo.CountVerificationCodes(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	total, err := repo.CountActivityLogs(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestVerify_Expired(t *testing.T) {
	engine, repo, clk := setup(t)
	ctx := context.Background()
	account := testutil.NewPendingAccount(t, repo, "new@example.com")

	code, err := engine.Issue(ctx, repo, account.ID, verification.PurposeSignUp, verification.IssueOptions{})
	require.NoError(t, err)

	clk.Advance(verification.CodeTTL - time.Second)
	_, err = engine.Verify(ctx, repo, account.Email, code, verification.PurposeSignUp)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = engine.Verify(ctx, repo, account.Email, code, verification.PurposeSignUp)
	assert.ErrorIs(t, err, verification.ErrInvalidCode)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerify_ScopedByPurposeAndEmail(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "reader@example.com")
	other := testutil.NewTestAccount(t, repo, "other@example.com")

	code, err := engine.Issue(ctx, repo, account.ID, verification.PurposeRecovery, verification.IssueOptions{})
	require.NoError(t, err)

	_, err = engine.Verify(ctx, repo, account.Email, code, verification.PurposeEmailChange)
	assert.ErrorIs(t, err, verification.ErrInvalidCode)

	_, err = engine.Verify(ctx, repo, other.Email, code, verification.PurposeRecovery)
	assert.ErrorIs(t, err, verification.ErrInvalidCode)

	match, err := engine.Verify(ctx, repo, " Reader@Example.com", code, verification.PurposeRecovery)
	require.NoError(t, err)
	assert.Equal(t, account.ID, match.AccountID)
	assert.Equal(t, account.Email, match.Email)
}

func TestVerify_Malformed(t *testing.T) {
	engine, repo, _ := setup(t)

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		_, err := engine.Verify(context.Background(), repo, "a@b.com", code, verification.PurposeSignUp)
		assert.ErrorIs(t, err, verification.ErrInvalidCode, code)
	}
}

func TestVerify_ReturnsTarget(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "reader@example.com")

	code, err := engine.Issue(ctx, repo, account.ID, verification.PurposeEmailChange,
		verification.IssueOptions{Target: "new@example.com"})
	require.NoError(t, err)

	match, err := engine.Verify(ctx, repo, account.Email, code, verification.PurposeEmailChange)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", match.Target)
}

func TestInvalidate(t *testing.T) {
	tests := []struct {
		reason      verification.Reason
		logType     models.LogType
		description string
	}{
		{verification.ReasonExpire, models.LogTypeSystem, "Verification code expired during password recovery process"},
		{verification.ReasonCancel, models.LogTypeUser, "User cancelled the password recovery process"},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			engine, repo, _ := setup(t)
			ctx := context.Background()
			account := testutil.NewTestAccount(t, repo, "reader@example.com")

			_, err := engine.Issue(ctx, repo, account.ID, verification.PurposeRecovery, verification.IssueOptions{})
			require.NoError(t, err)

			require.NoError(t, engine.Invalidate(ctx, repo, account.ID, verification.PurposeRecovery, tt.reason))

			count, err := repo.CountVerificationCodes(ctx, account.ID)
			require.NoError(t, err)
			assert.Zero(t, count)

			entry := lastLog(t, repo, account.ID)
			assert.Equal(t, tt.logType, entry.Type)
			assert.Equal(t, tt.description, entry.Description)
		})
	}
}

func TestInvalidate_Errors(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "reader@example.com")

	err := engine.Invalidate(ctx, repo, account.ID, verification.PurposeSignUp, verification.Reason("later"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = engine.Invalidate(ctx, repo, 999, verification.PurposeSignUp, verification.ReasonCancel)
	assert.ErrorIs(t, err, verification.ErrAccountNotFound)
}

func TestConsumeAndLogDelivered(t *testing.T) {
	engine, repo, _ := setup(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "reader@example.com")

	_, err := engine.Issue(ctx, repo, account.ID, verification.PurposeEmailChange, verification.IssueOptions{})
	require.NoError(t, err)

	require.NoError(t, engine.LogDelivered(ctx, repo, account.ID, verification.PurposeEmailChange))
	entry := lastLog(t, repo, account.ID)
	assert.Equal(t, models.LogTypeSystem, entry.Type)

	require.NoError(t, engine.Consume(ctx, repo, account.ID, verification.PurposeEmailChange))
	count, err := repo.CountVerificationCodes(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	entry = lastLog(t, repo, account.ID)
	assert.Equal(t, "User successfully verified their new email", entry.Description)
}

func TestPruneExpired(t *testing.T) {
	engine, repo, clk := setup(t)
	ctx := context.Background()
	stale := testutil.NewPendingAccount(t, repo, "stale@example.com")
	_, err := engine.Issue(ctx, repo, stale.ID, verification.PurposeSignUp, verification.IssueOptions{})
	require.NoError(t, err)

	clk.Advance(engine.TTL() + time.Second)
	fresh := testutil.NewPendingAccount(t, repo, "fresh@example.com")
	_, err = engine.Issue(ctx, repo, fresh.ID, verification.PurposeSignUp, verification.IssueOptions{})
	require.NoError(t, err)

	n, err := engine.PruneExpired(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetVerificationCode(ctx, stale.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetVerificationCode(ctx, fresh.ID)
	assert.NoError(t, err)
}
