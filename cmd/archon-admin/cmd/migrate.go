package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/archoncouncil/api/internal/infra/postgres"
	"github.com/archoncouncil/api/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the council session schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, r *migrations.Runner) error {
			return r.Up(ctx)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, r *migrations.Runner) error {
			return r.Down(ctx)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and when they were applied",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func withRunner(cmd *cobra.Command, fn func(context.Context, *migrations.Runner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.IsConfigured() {
		return fmt.Errorf("database not configured: set DATABASE_URL or DB_HOST")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, migrations.NewRunner(db.DB, migrations.Embedded(), cmd.OutOrStdout()))
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	return withRunner(cmd, func(ctx context.Context, r *migrations.Runner) error {
		lines, err := r.Status(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, lines); done {
			return err
		}

		t := newTable(out, "VERSION", "NAME", "APPLIED")
		for _, l := range lines {
			applied := "pending"
			if l.AppliedAt != nil {
				applied = l.AppliedAt.UTC().Format(time.RFC3339)
			}
			t.AddRow(l.Version, l.Name, applied)
		}
		t.Flush()
		return nil
	})
}
