// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log/slog"

	"codeberg.org/oliverandrich/readinglog/internal/clock"
	"codeberg.org/oliverandrich/readinglog/internal/repository"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func pruneCodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune-codes",
		Usage: "Delete expired verification codes",
		Action: withDatabase(func(db *sqlx.DB, _ string) error {
			n, err := verification.NewEngine(clock.Real()).PruneExpired(context.Background(), repository.New(db))
			if err != nil {
				return err
			}
			slog.Info("verification codes pruned", "count", n)
			return nil
		}),
	}
}
