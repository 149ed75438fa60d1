package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"mediagen/internal/infra"
	"mediagen/internal/migrations"
)

const ensureMigrationsTable = `create table if not exists schema_migrations (
    name       text primary key,
    applied_at timestamptz not null default now()
);`

func main() {
	var dryRun bool
	flag.BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	flag.Parse()

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate: ping database")
	}
	if _, err := db.ExecContext(ctx, ensureMigrationsTable); err != nil {
		logger.Fatal().Err(err).Msg("migrate: prepare schema_migrations")
	}

	all, err := migrations.All()
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: load migrations")
	}

	applied := 0
	for _, m := range all {
		var done bool
		if err := db.QueryRowContext(ctx, `select exists(select 1 from schema_migrations where name = $1)`, m.Name).Scan(&done); err != nil {
			logger.Fatal().Err(err).Str("migration", m.Name).Msg("migrate: check state")
		}
		if done {
			continue
		}
		if dryRun {
			logger.Info().Str("migration", m.Name).Msg("migrate: pending")
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			logger.Fatal().Err(err).Str("migration", m.Name).Msg("migrate: apply failed")
		}
		logger.Info().Str("migration", m.Name).Msg("migrate: applied")
		applied++
	}
	logger.Info().Int("applied", applied).Msg("migrate: done")
}

func apply(ctx context.Context, db *sql.DB, m migrations.Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `insert into schema_migrations(name) values ($1)`, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
