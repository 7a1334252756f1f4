// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/readinglog/internal/database"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withDatabase(func(*sqlx.DB, string) error {
					// Opening the database already migrated it.
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Action: withDatabase(func(db *sqlx.DB, dialect string) error {
					return database.MigrateDown(db.DB, dialect)
				}),
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Action: withDatabase(func(db *sqlx.DB, dialect string) error {
					return database.MigrateReset(db.DB, dialect)
				}),
			},
		},
	}
}

// withDatabase opens the configured database, runs fn and reports the
// resulting schema version.
func withDatabase(fn func(db *sqlx.DB, dialect string) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		dsn := cmd.String("database-dsn")
		dialect := database.Dialect(dsn)

		db, err := database.Open(dsn)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := fn(db, dialect); err != nil {
			return err
		}

		version, err := database.MigrationVersion(db.DB, dialect)
		if err != nil {
			return err
		}
		slog.Info("database schema", "dialect", dialect, "version", version)
		return nil
	}
}
