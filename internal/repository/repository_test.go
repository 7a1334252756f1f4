// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"errors"
	"testing"

	"codeberg.org/oliverandrich/readinglog/internal/models"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	db, repo := testutil.NewTestDB(t)

	assert.NotNil(t, repo)
	assert.Same(t, db, repo.DB())
}

func TestWithTx_Commit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	var id int64
	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		account := &models.Account{Email: "a@b.com", PasswordHash: "x", Nickname: "a"}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		id = account.ID
		return nil
	})
	require.NoError(t, err)

	_, err = repo.GetAccountByID(ctx, id)
	assert.NoError(t, err)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		account := &models.Account{Email: "a@b.com", PasswordHash: "x", Nickname: "a"}
		require.NoError(t, tx.CreateAccount(ctx, account))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = repo.GetAccountByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = repo.WithTx(ctx, func(tx *repository.Repository) error {
			account := &models.Account{Email: "a@b.com", PasswordHash: "x", Nickname: "a"}
			require.NoError(t, tx.CreateAccount(ctx, account))
			panic("boom")
		})
	})

	_, err := repo.GetAccountByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTx_Nested(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		return tx.WithTx(ctx, func(inner *repository.Repository) error {
			assert.Same(t, tx, inner)
			return nil
		})
	})

	assert.NoError(t, err)
}
