package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Conn is the subset of a pgx pool the executor needs.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Executor executes and tracks database migrations.
type Executor struct {
	conn   Conn
	lockID int64 // PostgreSQL advisory lock ID
	log    *zap.Logger
}

// NewExecutor creates a new migration executor.
func NewExecutor(conn Conn) *Executor {
	return &Executor{
		conn:   conn,
		lockID: 7395021846,
		log:    zap.NewNop(),
	}
}

// WithLockID sets a custom advisory lock ID.
func (e *Executor) WithLockID(lockID int64) *Executor {
	e.lockID = lockID
	return e
}

// WithLogger sets the logger used for progress output.
func (e *Executor) WithLogger(log *zap.Logger) *Executor {
	e.log = log.Named("migration")
	return e
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (e *Executor) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			applied_at TIMESTAMPTZ,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := e.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// Lock acquires an advisory lock to prevent concurrent migrations.
func (e *Executor) Lock(ctx context.Context) error {
	if _, err := e.conn.Exec(ctx, "SELECT pg_advisory_lock($1)", e.lockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return nil
}

// Unlock releases the advisory lock.
func (e *Executor) Unlock(ctx context.Context) error {
	var released bool
	err := e.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", e.lockID).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release migration lock: %w", err)
	}
	if !released {
		return fmt.Errorf("lock was not held")
	}
	return nil
}

// TryLock attempts to acquire an advisory lock without blocking.
func (e *Executor) TryLock(ctx context.Context) (bool, error) {
	var acquired bool
	err := e.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", e.lockID).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("failed to try migration lock: %w", err)
	}
	return acquired, nil
}

const selectRecords = `SELECT version, name, status, applied_at, error FROM schema_migrations`

func (e *Executor) records(ctx context.Context, where string) ([]MigrationRecord, error) {
	rows, err := e.conn.Query(ctx, selectRecords+where+" ORDER BY version ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var record MigrationRecord
		if err := rows.Scan(&record.Version, &record.Name, &record.Status, &record.AppliedAt, &record.Error); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetAppliedMigrations returns all migrations that have been applied.
func (e *Executor) GetAppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	return e.records(ctx, " WHERE status = 'applied'")
}

// GetAllMigrations returns all migration records.
func (e *Executor) GetAllMigrations(ctx context.Context) ([]MigrationRecord, error) {
	return e.records(ctx, "")
}

// IsMigrationApplied checks if a specific migration has been applied.
func (e *Executor) IsMigrationApplied(ctx context.Context, version string) (bool, error) {
	var count int
	err := e.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = $1 AND status = 'applied'",
		version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// Apply executes a migration's up SQL in one transaction. A failing
// statement rolls the schema back and leaves a failed record behind.
func (e *Executor) Apply(ctx context.Context, migration Migration, dryRun bool) error {
	applied, err := e.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("migration %s is already applied", migration.Version)
	}

	statements := SplitStatements(migration.UpSQL)
	if dryRun {
		e.log.Info("dry run", zap.String("version", migration.Version), zap.Int("statements", len(statements)))
		return nil
	}

	tx, err := e.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			e.recordFailure(ctx, migration, fmt.Sprintf("statement %d failed: %v", i+1, err))
			return fmt.Errorf("migration failed at statement %d: %w", i+1, err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name, status, applied_at) VALUES ($1, $2, 'applied', $3)
		 ON CONFLICT (version) DO UPDATE SET status = 'applied', applied_at = EXCLUDED.applied_at, error = NULL`,
		migration.Version, migration.Name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	e.log.Info("applied", zap.String("version", migration.Version), zap.String("name", migration.Name),
		zap.Int("statements", len(statements)))
	return nil
}

func (e *Executor) recordFailure(ctx context.Context, migration Migration, msg string) {
	_, err := e.conn.Exec(ctx,
		`INSERT INTO schema_migrations (version, name, status, error) VALUES ($1, $2, 'failed', $3)
		 ON CONFLICT (version) DO UPDATE SET status = 'failed', error = EXCLUDED.error`,
		migration.Version, migration.Name, msg,
	)
	if err != nil {
		e.log.Warn("could not record failed migration", zap.String("version", migration.Version), zap.Error(err))
	}
}

// Rollback executes a migration's down SQL.
func (e *Executor) Rollback(ctx context.Context, migration Migration, dryRun bool) error {
	applied, err := e.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("migration %s is not applied", migration.Version)
	}

	statements := SplitStatements(migration.DownSQL)
	if dryRun {
		e.log.Info("dry run rollback", zap.String("version", migration.Version), zap.Int("statements", len(statements)))
		return nil
	}

	tx, err := e.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("rollback failed at statement %d: %w", i+1, err)
		}
	}

	if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
		return fmt.Errorf("failed to delete migration record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	e.log.Info("rolled back", zap.String("version", migration.Version), zap.String("name", migration.Name))
	return nil
}

// ApplyAll applies all pending migrations in order and returns how many ran.
func (e *Executor) ApplyAll(ctx context.Context, migrations []Migration, dryRun bool) (int, error) {
	applied, err := e.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	appliedMap := make(map[string]bool, len(applied))
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	count := 0
	for _, migration := range migrations {
		if appliedMap[migration.Version] {
			continue
		}
		if err := e.Apply(ctx, migration, dryRun); err != nil {
			return count, fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		count++
	}
	return count, nil
}

// RollbackTo rolls back every applied migration newer than targetVersion.
// An empty target rolls back everything.
func (e *Executor) RollbackTo(ctx context.Context, targetVersion string, migrations []Migration, dryRun bool) (int, error) {
	applied, err := e.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	migrationMap := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		migrationMap[m.Version] = m
	}

	count := 0
	for i := len(applied) - 1; i >= 0; i-- {
		record := applied[i]
		if record.Version <= targetVersion {
			break
		}
		migration, exists := migrationMap[record.Version]
		if !exists {
			return count, fmt.Errorf("migration file not found for version %s", record.Version)
		}
		if err := e.Rollback(ctx, migration, dryRun); err != nil {
			return count, fmt.Errorf("failed to rollback migration %s: %w", record.Version, err)
		}
		count++
	}
	return count, nil
}

// GetStatus returns the status of all migrations.
func (e *Executor) GetStatus(ctx context.Context, migrations []Migration) ([]MigrationRecord, error) {
	all, err := e.GetAllMigrations(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]MigrationRecord, len(all))
	for _, m := range all {
		known[m.Version] = m
	}

	records := make([]MigrationRecord, 0, len(migrations))
	for _, migration := range migrations {
		if record, exists := known[migration.Version]; exists {
			records = append(records, record)
			continue
		}
		records = append(records, MigrationRecord{
			Version: migration.Version,
			Name:    migration.Name,
			Status:  StatusPending,
		})
	}
	return records, nil
}

// Validate checks that all migrations in the database have corresponding files.
func (e *Executor) Validate(ctx context.Context, migrations []Migration) error {
	dbMigrations, err := e.GetAllMigrations(ctx)
	if err != nil {
		return err
	}

	files := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		files[m.Version] = true
	}

	var missing []string
	for _, record := range dbMigrations {
		if !files[record.Version] {
			missing = append(missing, record.Version)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing migration files: %v", missing)
	}
	return nil
}

// SplitStatements splits a script on top level semicolons. Semicolons inside
// quoted strings, quoted identifiers, comments and dollar quoted bodies do
// not end a statement. Comment-only fragments are dropped.
func SplitStatements(sql string) []string {
	var (
		out   []string
		cur   strings.Builder
		code  bool // current statement has non-comment text
		delim string
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" && code {
			out = append(out, s)
		}
		cur.Reset()
		code = false
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if delim != "" {
			if strings.HasPrefix(sql[i:], delim) {
				cur.WriteString(delim)
				i += len(delim) - 1
				delim = ""
				continue
			}
			cur.WriteByte(c)
			continue
		}

		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			cur.WriteString(sql[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				end = len(sql) - i - 2
			} else {
				end += 2
			}
			cur.WriteString(sql[i : i+2+end])
			i += 1 + end
		case c == '\'' || c == '"':
			end := closingQuote(sql, i)
			cur.WriteString(sql[i:end])
			i = end - 1
			code = true
		case c == '$':
			if tag, ok := dollarTag(sql[i:]); ok {
				delim = tag
				cur.WriteString(tag)
				i += len(tag) - 1
				code = true
				continue
			}
			cur.WriteByte(c)
			code = true
		case c == ';':
			cur.WriteByte(c)
			flush()
		default:
			cur.WriteByte(c)
			if c != ' ' && c != '\n' && c != '\t' && c != '\r' {
				code = true
			}
		}
	}
	flush()

	for i, s := range out {
		out[i] = strings.TrimSuffix(s, ";")
	}
	return out
}

// closingQuote returns the index just past the quote that closes the one at
// start. Doubled quotes are escapes.
func closingQuote(sql string, start int) int {
	q := sql[start]
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

// dollarTag reports whether s starts with a dollar quote tag like $$ or $body$.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1], true
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || (i > 1 && c >= '0' && c <= '9'):
		default:
			return "", false
		}
	}
	return "", false
}
