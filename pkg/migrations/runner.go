package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// Runner executes database migrations.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	out  io.Writer
}

// NewRunner creates a new migration runner. Progress is written to out.
func NewRunner(db *sql.DB, fsys fs.FS, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{db: db, fsys: fsys, out: out}
}

// MigrationRecord represents a migration in the schema_migrations table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// StatusLine is one row of Status output.
type StatusLine struct {
	Version   string     `json:"version" yaml:"version"`
	Name      string     `json:"name" yaml:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

// EnsureMigrationTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	return err
}

// Applied returns all applied migration versions.
func (r *Runner) Applied(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		if err := rows.Scan(&rec.Version, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Pending returns migrations that need to be applied.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	available, err := Load(r.fsys, "up")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return pending(available, applied), nil
}

func pending(available []Migration, applied []MigrationRecord) []Migration {
	done := make(map[string]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}
	var out []Migration
	for _, m := range available {
		if !done[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Up runs all pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	todo, err := r.Pending(ctx)
	if err != nil {
		return err
	}
	if len(todo) == 0 {
		fmt.Fprintln(r.out, "No pending migrations")
		return nil
	}

	fmt.Fprintf(r.out, "Running %d migrations...\n", len(todo))
	for _, m := range todo {
		if err := r.run(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		fmt.Fprintf(r.out, "  Applied: %s\n", m)
	}
	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(r.out, "No migrations to rollback")
		return nil
	}
	last := applied[len(applied)-1]

	downs, err := Load(r.fsys, "down")
	if err != nil {
		return err
	}
	for _, m := range downs {
		if m.Version == last.Version {
			if err := r.run(ctx, m); err != nil {
				return fmt.Errorf("rollback %s failed: %w", m.Version, err)
			}
			fmt.Fprintf(r.out, "Rolled back: %s\n", m)
			return nil
		}
	}
	return fmt.Errorf("down migration not found for version %s", last.Version)
}

// run executes a migration and records (or removes) its version in the same transaction.
func (r *Runner) run(ctx context.Context, m Migration) error {
	content, err := fs.ReadFile(r.fsys, m.File)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}

	if m.Direction == "up" {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Status reports every known migration and when it was applied.
func (r *Runner) Status(ctx context.Context) ([]StatusLine, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	available, err := Load(r.fsys, "up")
	if err != nil {
		return nil, err
	}
	return status(available, applied), nil
}

func status(available []Migration, applied []MigrationRecord) []StatusLine {
	at := make(map[string]time.Time, len(applied))
	for _, rec := range applied {
		at[rec.Version] = rec.AppliedAt
	}
	lines := make([]StatusLine, 0, len(available))
	for _, m := range available {
		line := StatusLine{Version: m.Version, Name: m.Name}
		if t, ok := at[m.Version]; ok {
			line.AppliedAt = &t
		}
		lines = append(lines, line)
	}
	return lines
}
