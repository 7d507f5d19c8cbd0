// Package migration plans, writes and applies schema migrations.
package migration

import (
	"time"

	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Migration represents a database migration.
type Migration struct {
	Version   string    // Version/timestamp (e.g., "20240101120000")
	Name      string    // Migration name (e.g., "create_procurement_schema")
	UpSQL     string    // SQL for applying the migration
	DownSQL   string    // SQL for rolling back the migration
	AppliedAt time.Time // When the migration was applied
}

// MigrationFile represents a migration file on disk.
type MigrationFile struct {
	Version  string // Version/timestamp
	Name     string // Migration name
	UpPath   string // Path to .up.sql file
	DownPath string // Path to .down.sql file
}

// Blueprint is everything a full schema migration creates.
type Blueprint struct {
	// Tables in dependency order: referenced tables first.
	Tables []*schema.TableMetadata
	// Functions are created after the tables and before policies and triggers.
	Functions []schema.FunctionMetadata
	// Role is the application role that receives table privileges. It is
	// created if missing.
	Role string
}

// IsEmpty reports whether the blueprint would produce no statements.
func (b *Blueprint) IsEmpty() bool {
	return b == nil || (len(b.Tables) == 0 && len(b.Functions) == 0 && b.Role == "")
}

// MigrationStatus represents the status of a migration.
type MigrationStatus string

const (
	// StatusPending means the migration has not been applied.
	StatusPending MigrationStatus = "pending"
	// StatusApplied means the migration has been applied.
	StatusApplied MigrationStatus = "applied"
	// StatusFailed means the migration failed to apply.
	StatusFailed MigrationStatus = "failed"
)

// MigrationRecord represents a migration in the tracking table.
type MigrationRecord struct {
	Version   string          // Migration version
	Name      string          // Migration name
	Status    MigrationStatus // Current status
	AppliedAt *time.Time      // When applied (nil if not applied)
	Error     *string         // Error message if failed
}

// GenerateVersion generates a timestamp-based version string.
// Format: YYYYMMDDHHmmss (e.g., "20240101120000")
func GenerateVersion() string {
	return time.Now().UTC().Format("20060102150405")
}

// GenerateFileName generates a migration filename.
// Format: {version}_{name}.{up|down}.sql
func GenerateFileName(version, name, direction string) string {
	return version + "_" + name + "." + direction + ".sql"
}
