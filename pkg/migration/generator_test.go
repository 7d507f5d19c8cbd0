package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateVersion(t *testing.T) {
	version := GenerateVersion()
	if len(version) != 14 {
		t.Errorf("Expected version length 14, got %d", len(version))
	}
	for _, c := range version {
		if c < '0' || c > '9' {
			t.Errorf("Expected numeric version, got %s", version)
			break
		}
	}
}

func TestGenerateFileName(t *testing.T) {
	tests := []struct {
		version   string
		name      string
		direction string
		expected  string
	}{
		{"20240101120000", "procurement_schema", "up", "20240101120000_procurement_schema.up.sql"},
		{"20240101120000", "procurement_schema", "down", "20240101120000_procurement_schema.down.sql"},
	}
	for _, test := range tests {
		result := GenerateFileName(test.version, test.name, test.direction)
		if result != test.expected {
			t.Errorf("GenerateFileName(%s, %s, %s) = %s, expected %s",
				test.version, test.name, test.direction, result, test.expected)
		}
	}
}

func TestGeneratorGenerate(t *testing.T) {
	dir := t.TempDir()
	generator := NewGenerator(dir)

	migrationFile, err := generator.Generate("procurement_schema", testBlueprint())
	if err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}
	if migrationFile.Name != "procurement_schema" {
		t.Errorf("Expected name 'procurement_schema', got %s", migrationFile.Name)
	}

	migration, err := generator.ReadMigration(*migrationFile)
	if err != nil {
		t.Fatalf("Failed to read migration: %v", err)
	}
	if !strings.Contains(migration.UpSQL, "ALTER TABLE orders ENABLE ROW LEVEL SECURITY;") {
		t.Errorf("Expected row security in up migration, got: %s", migration.UpSQL)
	}
	if !strings.Contains(migration.DownSQL, `DROP TABLE IF EXISTS "users";`) {
		t.Errorf("Expected DROP TABLE in down migration, got: %s", migration.DownSQL)
	}

	if _, err := generator.Generate("nothing", &Blueprint{}); err == nil {
		t.Error("expected error for empty blueprint")
	}
}

func TestGeneratorGenerateEmpty(t *testing.T) {
	generator := NewGenerator(t.TempDir())

	migrationFile, err := generator.GenerateEmpty("backfill_tiers")
	if err != nil {
		t.Fatalf("Failed to generate empty migration: %v", err)
	}

	upContent, err := os.ReadFile(migrationFile.UpPath)
	if err != nil {
		t.Fatalf("Failed to read up migration: %v", err)
	}
	if !strings.Contains(string(upContent), "-- Migration: backfill_tiers") {
		t.Errorf("Expected migration comment, got: %s", upContent)
	}
	if stmts := SplitStatements(string(upContent)); len(stmts) != 0 {
		t.Errorf("Expected comment-only migration to have no statements, got %v", stmts)
	}
}

func TestGeneratorListMigrations(t *testing.T) {
	dir := t.TempDir()
	generator := NewGenerator(dir)

	write := func(name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- sql"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("20240103160000_add_indexes.up.sql")
	write("20240103160000_add_indexes.down.sql")
	write("20240101120000_procurement_schema.up.sql")
	write("20240101120000_procurement_schema.down.sql")
	write("20240102140000_incomplete.up.sql")
	write("README.md")

	listed, err := generator.ListMigrations()
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 complete migrations, got %d", len(listed))
	}
	if listed[0].Version != "20240101120000" || listed[1].Version != "20240103160000" {
		t.Errorf("Expected version order, got %s then %s", listed[0].Version, listed[1].Version)
	}
	if listed[0].Name != "procurement_schema" {
		t.Errorf("Expected name 'procurement_schema', got %s", listed[0].Name)
	}
}

func TestGeneratorListMigrationsNonExistentDir(t *testing.T) {
	listed, err := NewGenerator(filepath.Join(t.TempDir(), "missing")).ListMigrations()
	if err != nil {
		t.Fatalf("Expected no error for non-existent directory, got: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("Expected 0 migrations, got %d", len(listed))
	}
}
