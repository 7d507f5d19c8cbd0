package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/cmd/procuredb/output"
	"github.com/marshallshelly/procuredb/cmd/procuredb/tui"
	"github.com/marshallshelly/procuredb/pkg/migration"
)

var (
	dryRun      bool
	all         bool
	steps       int
	target      string
	interactive bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply, roll back and inspect migrations.

Subcommands:
  up      - Apply pending migrations
  down    - Roll back migrations
  status  - Show migration status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Apply pending migrations. Failed migrations count as pending and are retried.

Examples:
  procuredb migrate up --all              # Apply all pending migrations
  procuredb migrate up --steps 1          # Apply the next migration
  procuredb migrate up --dry-run --all    # Preview without applying
  procuredb migrate up -i                 # Choose interactively`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), runMigrateUp)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Long: `Roll back applied migrations, newest first.

Examples:
  procuredb migrate down --steps 1        # Roll back the last migration
  procuredb migrate down --target VERSION # Roll back everything newer than VERSION
  procuredb migrate down --dry-run        # Preview without executing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), runMigrateDown)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), runMigrateStatus)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)

	migrateUpCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run in interactive mode with TUI")
	migrateUpCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview migrations without applying")
	migrateUpCmd.Flags().BoolVar(&all, "all", false, "Apply all pending migrations")
	migrateUpCmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply")

	migrateDownCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run in interactive mode with TUI")
	migrateDownCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview rollback without executing")
	migrateDownCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	migrateDownCmd.Flags().StringVar(&target, "target", "", "Roll back to a specific version")
}

// migrateRun is the state every migrate subcommand works with.
type migrateRun struct {
	executor   *migration.Executor
	migrations []migration.Migration
	status     []migration.MigrationRecord
}

// withMigrations connects, pins one connection for the session level
// advisory lock, loads the files and their status, and runs fn.
func withMigrations(ctx context.Context, fn func(context.Context, *migrateRun) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	run, err := loadMigrations(ctx, conn, cfg.App.MigrationsDir, log)
	if err != nil {
		return err
	}
	return fn(ctx, run)
}

func loadMigrations(ctx context.Context, conn *pgxpool.Conn, dir string, log *zap.Logger) (*migrateRun, error) {
	executor := migration.NewExecutor(conn.Conn()).WithLogger(log)
	if err := executor.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	generator := migration.NewGenerator(dir)
	files, err := generator.ListMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	migrations := make([]migration.Migration, 0, len(files))
	for _, file := range files {
		mig, err := generator.ReadMigration(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration: %w", err)
		}
		migrations = append(migrations, *mig)
	}
	if err := executor.Validate(ctx, migrations); err != nil {
		return nil, err
	}
	status, err := executor.GetStatus(ctx, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}
	return &migrateRun{executor: executor, migrations: migrations, status: status}, nil
}

func (r *migrateRun) locked(ctx context.Context, fn func() error) error {
	if err := r.executor.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = r.executor.Unlock(ctx) }()
	return fn()
}

// pending returns the migrations not yet applied, oldest first.
func (r *migrateRun) pending() []migration.Migration {
	var out []migration.Migration
	for i, s := range r.status {
		if s.Status != migration.StatusApplied {
			out = append(out, r.migrations[i])
		}
	}
	return out
}

// applied returns the applied migrations, newest first.
func (r *migrateRun) applied() []migration.Migration {
	var out []migration.Migration
	for i := len(r.status) - 1; i >= 0; i-- {
		if r.status[i].Status == migration.StatusApplied {
			out = append(out, r.migrations[i])
		}
	}
	return out
}

func runMigrateUp(ctx context.Context, r *migrateRun) error {
	if len(r.migrations) == 0 {
		output.Warning("No migrations found")
		return nil
	}
	if interactive {
		return r.locked(ctx, func() error {
			return tui.RunMigrateUI("up", r.executor, r.migrations, r.status)
		})
	}
	if !all && steps <= 0 {
		return fmt.Errorf("must specify --all or --steps")
	}

	toApply := r.pending()
	if !all && steps < len(toApply) {
		toApply = toApply[:steps]
	}
	if len(toApply) == 0 {
		output.Info("No pending migrations")
		return nil
	}

	if dryRun {
		output.Section("DRY RUN - Preview")
		output.Info("The following migrations would be applied:")
		for _, mig := range toApply {
			output.Muted("  %s %s - %s", output.StatusIcon("pending"), mig.Version, mig.Name)
		}
		return nil
	}

	return r.locked(ctx, func() error {
		output.Section("Applying Migrations")
		for _, mig := range toApply {
			output.Info("Applying %s - %s...", mig.Version, mig.Name)
			if err := r.executor.Apply(ctx, mig, false); err != nil {
				output.Error("Failed to apply migration %s: %v", mig.Version, err)
				return fmt.Errorf("failed to apply migration %s: %w", mig.Version, err)
			}
			output.Success("Applied %s", mig.Version)
		}
		output.Success("Successfully applied %d migration(s)", len(toApply))
		return nil
	})
}

func runMigrateDown(ctx context.Context, r *migrateRun) error {
	if interactive {
		return r.locked(ctx, func() error {
			return tui.RunMigrateUI("down", r.executor, r.migrations, r.status)
		})
	}

	applied := r.applied()
	if len(applied) == 0 {
		output.Info("No migrations to roll back")
		return nil
	}

	var toRollback []migration.Migration
	if target != "" {
		if _, err := strconv.ParseUint(target, 10, 64); err != nil || len(target) != len(migration.GenerateVersion()) {
			return fmt.Errorf("--target must be a migration version like 20240101120000")
		}
		for _, mig := range applied {
			if mig.Version <= target {
				break
			}
			toRollback = append(toRollback, mig)
		}
	} else {
		toRollback = applied[:min(steps, len(applied))]
	}
	if len(toRollback) == 0 {
		output.Info("Nothing to roll back")
		return nil
	}

	if dryRun {
		output.Section("DRY RUN - Preview")
		output.Info("The following migrations would be rolled back:")
		for _, mig := range toRollback {
			output.Muted("  %s %s - %s", output.StatusIcon("applied"), mig.Version, mig.Name)
		}
		return nil
	}

	return r.locked(ctx, func() error {
		output.Section("Rolling Back Migrations")
		for _, mig := range toRollback {
			output.Warning("Rolling back %s - %s...", mig.Version, mig.Name)
			if err := r.executor.Rollback(ctx, mig, false); err != nil {
				output.Error("Failed to roll back migration %s: %v", mig.Version, err)
				return fmt.Errorf("failed to roll back migration %s: %w", mig.Version, err)
			}
			output.Success("Rolled back %s", mig.Version)
		}
		output.Success("Successfully rolled back %d migration(s)", len(toRollback))
		return nil
	})
}

func runMigrateStatus(_ context.Context, r *migrateRun) error {
	if jsonOutput {
		return output.JSON(r.status)
	}
	if len(r.status) == 0 {
		output.Warning("No migrations found")
		return nil
	}

	counts := map[migration.MigrationStatus]int{}
	rows := make([][]string, 0, len(r.status))
	for _, record := range r.status {
		appliedAt := "N/A"
		if record.AppliedAt != nil {
			appliedAt = record.AppliedAt.Format("2006-01-02 15:04:05")
		}
		counts[record.Status]++
		rows = append(rows, []string{
			record.Version,
			record.Name,
			output.StatusIcon(string(record.Status)) + " " + string(record.Status),
			appliedAt,
		})
	}
	output.Table([]string{"VERSION", "NAME", "STATUS", "APPLIED AT"}, rows)

	summary := fmt.Sprintf("Summary: %d applied, %d pending", counts[migration.StatusApplied], counts[migration.StatusPending])
	if n := counts[migration.StatusFailed]; n > 0 {
		summary += fmt.Sprintf(", %d failed", n)
	}
	output.Muted("\n%s", summary)
	return nil
}
