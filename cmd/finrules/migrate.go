package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/finrules/internal/cli"
	"github.com/Veraticus/finrules/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your database has all the required tables and
indexes for the application to function properly.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current schema version without applying changes")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.Open(storage.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	if status {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
		fmt.Fprintf(out, "Driver:  %s\n", store.Driver())
		fmt.Fprintf(out, "Current: %d\n", current)
		fmt.Fprintf(out, "Latest:  %d\n", storage.ExpectedSchemaVersion)
		if current < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning("Run 'finrules migrate' to upgrade"))
		}
		return nil
	}

	slog.Info("Running database migrations", "driver", store.Driver())
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database is at schema version %d", storage.ExpectedSchemaVersion)))
	return nil
}
