// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account_test

import (
	"context"
	"fmt"
	"testing"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	authctx "codeberg.org/oliverandrich/readinglog/internal/auth"
	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/account"
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"codeberg.org/oliverandrich/readinglog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *account.Service
	repo     *repository.Repository
	mailer   *testutil.Mailer
	sessions *session.Manager
	account  *models.Account
	identity *authctx.Identity
}

func setup(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clk := clock.NewFixed(testutil.Now)
	mailer := &testutil.Mailer{}
	sessions := testutil.NewSessionManager(t, clk)
	acc := testutil.NewTestAccount(t, repo, "reader@example.com")

	return &fixture{
		svc:      account.NewService(repo, verification.NewEngine(clk), mailer, sessions, nil, limiter.Rules{}, clk),
		repo:     repo,
		mailer:   mailer,
		sessions: sessions,
		account:  acc,
		identity: &authctx.Identity{AccountID: acc.ID, Email: acc.Email, Version: acc.SessionVersion},
	}
}

func TestEmail(t *testing.T) {
	f := setup(t)

	addr, err := f.svc.Email(context.Background(), f.identity)

	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", addr)

	_, err = f.svc.Email(context.Background(), nil)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRequestChange_MailsNewAddress(t *testing.T) {
	f := setup(t)

	target, err := f.svc.RequestChange(context.Background(), f.identity, " New@Example.com")

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", target)
	msgs := f.mailer.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "new@example.com", msgs[0].To)

	code, err := f.repo.GetVerificationCode(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", code.Target)
}

func TestRequestChange_Rejections(t *testing.T) {
	f := setup(t)
	testutil.NewPendingAccount(t, f.repo, "pending@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestChange(ctx, f.identity, "invalid")
	assert.ErrorIs(t, err, account.ErrInvalidEmail)

	for _, addr := range []string{"reader@example.com", "PENDING@example.com"} {
		_, err = f.svc.RequestChange(ctx, f.identity, addr)
		assert.ErrorIs(t, err, account.ErrEmailTaken, addr)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	}
	assert.Empty(t, f.mailer.Messages())
}

func TestConfirm_ChangesEmailAndReissuesToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.RequestChange(ctx, f.identity, "new@example.com")
	require.NoError(t, err)

	result, err := f.svc.Confirm(ctx, f.identity, "new@example.com", f.mailer.LastCode(t))
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", result.Email)
	claims, err := f.sessions.Verify(result.Cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", claims.Email)
	assert.Equal(t, 2, claims.Version)

	updated, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, "new", updated.Nickname)

	count, err := f.repo.CountVerificationCodes(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	logs, err := f.repo.ListActivityLogs(ctx, f.account.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "User successfully verified their new email", logs[0].Description)
}

func TestConfirm_OldTokenBecomesStale(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	authSvc := auth.NewService(f.repo, f.sessions, nil, limiter.Rules{}, nil)

	old, err := f.sessions.Issue(f.account.ID, f.account.Email, f.account.SessionVersion)
	require.NoError(t, err)
	_, err = authSvc.Authenticate(ctx, old)
	require.NoError(t, err)

	_, err = f.svc.RequestChange(ctx, f.identity, "new@example.com")
	require.NoError(t, err)
	result, err := f.svc.Confirm(ctx, f.identity, "new@example.com", f.mailer.LastCode(t))
	require.NoError(t, err)

	_, err = authSvc.Authenticate(ctx, old)
	assert.ErrorIs(t, err, auth.ErrStaleToken)

	identity, err := authSvc.Authenticate(ctx, result.Cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", identity.Email)
}

func TestConfirm_TargetMustMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.RequestChange(ctx, f.identity, "new@example.com")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, f.identity, "other@example.com", f.mailer.LastCode(t))

	assert.ErrorIs(t, err, verification.ErrInvalidCode)
	assert.ErrorIs(t, err, account.ErrTargetMismatch)
}

func TestConfirm_CodeOfAnotherAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := testutil.NewTestAccount(t, f.repo, "other@example.com")
	otherID := &authctx.Identity{AccountID: other.ID, Email: other.Email, Version: 1}

	_, err := f.svc.RequestChange(ctx, otherID, "fresh@example.com")
	require.NoError(t, err)
	otherCode := f.mailer.LastCode(t)

	_, err = f.svc.Confirm(ctx, f.identity, "fresh@example.com", otherCode)
	assert.ErrorIs(t, err, verification.ErrInvalidCode)

	unchanged, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", unchanged.Email)
}

func TestConfirm_EmailTakenMeanwhile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.RequestChange(ctx, f.identity, "new@example.com")
	require.NoError(t, err)
	code := f.mailer.LastCode(t)

	testutil.NewPendingAccount(t, f.repo, "new@example.com")

	_, err = f.svc.Confirm(ctx, f.identity, "new@example.com", code)
	assert.ErrorIs(t, err, account.ErrEmailTaken)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestResendAndCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.RequestChange(ctx, f.identity, "new@example.com")
	require.NoError(t, err)

	_, err = f.svc.Resend(ctx, f.identity, "new@example.com")
	require.NoError(t, err)
	assert.Len(t, f.mailer.Messages(), 2)

	require.NoError(t, f.svc.Cancel(ctx, f.identity, verification.ReasonExpire))

	logs, err := f.repo.ListActivityLogs(ctx, f.account.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "Verification code expired during the change email process", logs[0].Description)
	assert.Equal(t, models.LogTypeSystem, logs[0].Type)

	count, err := f.repo.CountVerificationCodes(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChangePassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cookie, err := f.svc.ChangePassword(ctx, f.identity, testutil.TestPassword, "N3w&Secret")
	require.NoError(t, err)

	claims, err := f.sessions.Verify(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 2, claims.Version)

	updated, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(updated.PasswordHash, "N3w&Secret"))

	logs, err := f.repo.ListActivityLogs(ctx, f.account.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "User successfully updated their password", logs[0].Description)
}

func TestChangePassword_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.ChangePassword(ctx, f.identity, "Wrong1!pass", "N3w&Secret")
	assert.ErrorIs(t, err, account.ErrIncorrectPassword)
	assert.Equal(t, "error_incorrect_password", apperr.From(err).Message.ID)

	_, err = f.svc.ChangePassword(ctx, f.identity, testutil.TestPassword, "weak")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	unchanged, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.SessionVersion)
}

func TestActivityLogs_Paging(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := range 23 {
		require.NoError(t, f.repo.AddActivityLog(ctx, f.account.ID, models.LogTypeUser, fmt.Sprintf("entry %d", i), testutil.Now))
	}

	first, err := f.svc.ActivityLogs(ctx, f.identity, 1)
	require.NoError(t, err)
	assert.Len(t, first.Logs, 10)
	assert.Equal(t, int64(23), first.TotalLogs)
	assert.Equal(t, int64(3), first.TotalPages)
	assert.Equal(t, 1, first.CurrentPage)
	assert.Equal(t, "entry 22", first.Logs[0].Description)

	last, err := f.svc.ActivityLogs(ctx, f.identity, 3)
	require.NoError(t, err)
	assert.Len(t, last.Logs, 3)
	assert.Equal(t, "entry 0", last.Logs[2].Description)

	clamped, err := f.svc.ActivityLogs(ctx, f.identity, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.CurrentPage)
}

func TestActivityLogs_Empty(t *testing.T) {
	f := setup(t)

	page, err := f.svc.ActivityLogs(context.Background(), f.identity, 1)

	require.NoError(t, err)
	assert.Empty(t, page.Logs)
	assert.NotNil(t, page.Logs)
	assert.Zero(t, page.TotalPages)
}
