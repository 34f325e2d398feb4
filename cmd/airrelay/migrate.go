package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
	"github.com/nerrad567/airrelay/internal/infrastructure/database"
	"github.com/nerrad567/airrelay/migrations"
)

// migrateCommand manages the schema of the SQLite directory store. The
// Redis backend has no schema.
func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the SQLite store schema",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "List applied and pending migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDatabase(ctx, cmd.String("config"), func(db *database.DB) error {
						return migrationStatus(ctx, db, cmd.Root().Writer)
					})
				},
			},
			{
				Name:  "up",
				Usage: "Apply every pending migration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDatabase(ctx, cmd.String("config"), func(db *database.DB) error {
						if err := db.Migrate(ctx, migrations.FS); err != nil {
							return err
						}
						fmt.Fprintln(cmd.Root().Writer, "schema is up to date")
						return nil
					})
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the most recent migration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDatabase(ctx, cmd.String("config"), func(db *database.DB) error {
						version, err := db.MigrateDown(ctx, migrations.FS)
						if err != nil {
							return err
						}
						if version == "" {
							fmt.Fprintln(cmd.Root().Writer, "no migrations applied")
							return nil
						}
						fmt.Fprintf(cmd.Root().Writer, "rolled back %s\n", version)
						return nil
					})
				},
			},
		},
	}
}

// withDatabase opens the configured SQLite database without migrating it.
func withDatabase(ctx context.Context, configPath string, fn func(*database.DB) error) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.StoreBackendSQLite {
		return fmt.Errorf("migrations apply to the sqlite store backend, not %q", cfg.Store.Backend)
	}

	db, err := database.Open(ctx, cfg.Store.SQLite)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(db)
}

func migrationStatus(ctx context.Context, db *database.DB, w io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}
	for _, r := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
