// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/config"
	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/limiter"
	"codeberg.org/oliverandrich/readinglog/internal/services/recovery"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"codeberg.org/oliverandrich/readinglog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grantKey = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

type fixture struct {
	svc      *recovery.Service
	repo     *repository.Repository
	mailer   *testutil.Mailer
	sessions *session.Manager
	clock    *clock.Fixed
	account  *models.Account
}

func setup(t *testing.T, uniform bool) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clk := clock.NewFixed(testutil.Now)
	mailer := &testutil.Mailer{}
	sessions := testutil.NewSessionManager(t, clk)

	svc, err := recovery.NewService(
		&config.RecoveryConfig{GrantKey: grantKey, GrantTTL: 15 * time.Minute, UniformResponse: uniform},
		repo, verification.NewEngine(clk), mailer, sessions, nil, limiter.Rules{}, clk, false,
	)
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		repo:     repo,
		mailer:   mailer,
		sessions: sessions,
		clock:    clk,
		account:  testutil.NewTestAccount(t, repo, "reader@example.com"),
	}
}

func (f *fixture) confirm(t *testing.T) *recovery.ConfirmResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Initiate(ctx, f.account.Email, "")
	require.NoError(t, err)
	result, err := f.svc.Confirm(ctx, f.account.Email, f.mailer.LastCode(t))
	require.NoError(t, err)
	return result
}

func TestNewService_GrantKey(t *testing.T) {
	_, err := recovery.NewService(&config.RecoveryConfig{GrantKey: "zz"}, nil, nil, nil, nil, nil, limiter.Rules{}, nil, false)
	assert.ErrorContains(t, err, "invalid recovery grant key")

	_, err = recovery.NewService(&config.RecoveryConfig{}, nil, nil, nil, nil, nil, limiter.Rules{}, nil, true)
	assert.ErrorContains(t, err, "recovery grant key is required")

	svc, err := recovery.NewService(&config.RecoveryConfig{}, nil, nil, nil, nil, nil, limiter.Rules{}, nil, false)
	require.NoError(t, err)
	assert.False(t, svc.UniformResponse())
}

func TestInitiate_SendsCode(t *testing.T) {
	f := setup(t, false)

	addr, err := f.svc.Initiate(context.Background(), " Reader@Example.com", "")

	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", addr)
	msgs := f.mailer.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "reader@example.com", msgs[0].To)
	assert.Equal(t, "Reset your Reading Log password", msgs[0].Subject)

	logs, err := f.repo.ListActivityLogs(context.Background(), f.account.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "User initiated a password recovery process", logs[1].Description)
	assert.Equal(t, models.LogTypeUser, logs[1].Type)
}

func TestInitiate_UnknownEmail(t *testing.T) {
	f := setup(t, false)

	_, err := f.svc.Initiate(context.Background(), "nobody@example.com", "")

	assert.ErrorIs(t, err, recovery.ErrUnknownEmail)
	appErr := apperr.From(err)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
	assert.Equal(t, "error_invalid_email", appErr.Message.ID)
}

func TestInitiate_UniformResponse(t *testing.T) {
	f := setup(t, true)

	addr, err := f.svc.Initiate(context.Background(), "nobody@example.com", "")

	require.NoError(t, err)
	assert.Equal(t, "nobody@example.com", addr)
	assert.Empty(t, f.mailer.Messages())
	assert.True(t, f.svc.UniformResponse())
}

func TestInitiate_RejectsAuthenticatedCaller(t *testing.T) {
	f := setup(t, false)
	token, err := f.sessions.Issue(f.account.ID, f.account.Email, 1)
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), f.account.Email, token)

	assert.ErrorIs(t, err, recovery.ErrAlreadyAuthenticated)
}

func TestInitiate_MailFailure(t *testing.T) {
	f := setup(t, false)
	f.mailer.Err = testutil.ErrMailer

	_, err := f.svc.Initiate(context.Background(), f.account.Email, "")

	assert.Equal(t, apperr.KindDelivery, apperr.KindOf(err))
	taken, err := f.repo.EmailTaken(context.Background(), f.account.Email)
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestConfirm_LeavesFlagsAlone(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	result := f.confirm(t)

	assert.NotEmpty(t, result.Grant)
	assert.Equal(t, recovery.GrantCookieName, result.Cookie.Name)
	assert.True(t, result.Cookie.HttpOnly)

	account, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.Verified)
	assert.True(t, account.Active)

	count, err := f.repo.CountVerificationCodes(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	logs, err := f.repo.ListActivityLogs(ctx, f.account.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "User successfully verified their email during password recovery", logs[0].Description)
}

func TestConfirm_CodeIsSingleUse(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	_, err := f.svc.Initiate(ctx, f.account.Email, "")
	require.NoError(t, err)
	code := f.mailer.LastCode(t)

	_, err = f.svc.Confirm(ctx, f.account.Email, code)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, f.account.Email, code)
	assert.ErrorIs(t, err, verification.ErrInvalidCode)
}

func TestSetNewPassword(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	result := f.confirm(t)

	require.NoError(t, f.svc.SetNewPassword(ctx, "READER@example.com", "N3w&Secret", result.Grant))

	account, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(account.PasswordHash, "N3w&Secret"))
	assert.Equal(t, 2, account.SessionVersion)

	logs, err := f.repo.ListActivityLogs(ctx, f.account.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "User successfully changed their password", logs[0].Description)
}

func TestSetNewPassword_GrantIsSingleUse(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	result := f.confirm(t)

	require.NoError(t, f.svc.SetNewPassword(ctx, f.account.Email, "N3w&Secret", result.Grant))

	err := f.svc.SetNewPassword(ctx, f.account.Email, "Other1&Secret", result.Grant)
	assert.ErrorIs(t, err, recovery.ErrGrantInvalid)
}

func TestSetNewPassword_RequiresGrant(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	for _, value := range []string{"", "forged"} {
		err := f.svc.SetNewPassword(ctx, f.account.Email, "N3w&Secret", value)
		assert.ErrorIs(t, err, recovery.ErrGrantInvalid)
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	}

	account, err := f.repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(account.PasswordHash, testutil.TestPassword))
}

func TestSetNewPassword_GrantBoundToEmail(t *testing.T) {
	f := setup(t, false)
	testutil.NewTestAccount(t, f.repo, "victim@example.com")
	result := f.confirm(t)

	err := f.svc.SetNewPassword(context.Background(), "victim@example.com", "N3w&Secret", result.Grant)

	assert.ErrorIs(t, err, recovery.ErrGrantInvalid)
}

func TestSetNewPassword_GrantExpires(t *testing.T) {
	f := setup(t, false)
	result := f.confirm(t)

	f.clock.Advance(15 * time.Minute)

	err := f.svc.SetNewPassword(context.Background(), f.account.Email, "N3w&Secret", result.Grant)
	assert.ErrorIs(t, err, recovery.ErrGrantInvalid)
}

func TestSetNewPassword_WeakPassword(t *testing.T) {
	f := setup(t, false)
	result := f.confirm(t)

	err := f.svc.SetNewPassword(context.Background(), f.account.Email, "weak", result.Grant)

	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	account, err := f.repo.GetAccountByID(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, account.SessionVersion)
}

func TestResendAndCancel(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	_, err := f.svc.Initiate(ctx, f.account.Email, "")
	require.NoError(t, err)

	_, err = f.svc.Resend(ctx, f.account.Email)
	require.NoError(t, err)
	assert.Len(t, f.mailer.Messages(), 2)

	logs, err := f.repo.ListActivityLogs(ctx, f.account.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "User resent a new verification code", logs[1].Description)

	require.NoError(t, f.svc.Cancel(ctx, f.account.Email, verification.ReasonCancel))
	count, err := f.repo.CountVerificationCodes(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.svc.Resend(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, recovery.ErrUnknownEmail)
}

func TestClearGrantCookie(t *testing.T) {
	f := setup(t, false)

	cookie := f.svc.ClearGrantCookie()

	assert.Equal(t, recovery.GrantCookieName, cookie.Name)
	assert.Equal(t, -1, cookie.MaxAge)
}
