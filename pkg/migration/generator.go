package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Generator writes and reads migration files.
type Generator struct {
	migrationsDir string
	planner       *Planner
}

// NewGenerator creates a new migration file generator.
func NewGenerator(migrationsDir string) *Generator {
	return &Generator{
		migrationsDir: migrationsDir,
		planner:       NewPlanner(),
	}
}

// Generate renders a blueprint and writes it as a new up/down pair.
func (g *Generator) Generate(name string, bp *Blueprint) (*MigrationFile, error) {
	upSQL, downSQL, err := g.planner.GenerateMigration(bp)
	if err != nil {
		return nil, fmt.Errorf("failed to plan migration: %w", err)
	}
	return g.write(name, upSQL, downSQL)
}

// GenerateEmpty creates empty migration files for manual editing.
func (g *Generator) GenerateEmpty(name string) (*MigrationFile, error) {
	version := GenerateVersion()
	upSQL := fmt.Sprintf("-- Migration: %s\n-- Created at: %s\n\n-- Write your UP migration here\n", name, version)
	downSQL := fmt.Sprintf("-- Migration: %s\n-- Created at: %s\n\n-- Write your DOWN migration here\n", name, version)
	return g.write(name, upSQL, downSQL)
}

func (g *Generator) write(name, upSQL, downSQL string) (*MigrationFile, error) {
	if err := os.MkdirAll(g.migrationsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version := GenerateVersion()
	migrationFile := &MigrationFile{
		Version:  version,
		Name:     name,
		UpPath:   filepath.Join(g.migrationsDir, GenerateFileName(version, name, "up")),
		DownPath: filepath.Join(g.migrationsDir, GenerateFileName(version, name, "down")),
	}

	if err := os.WriteFile(migrationFile.UpPath, []byte(upSQL), 0644); err != nil {
		return nil, fmt.Errorf("failed to write up migration: %w", err)
	}
	if err := os.WriteFile(migrationFile.DownPath, []byte(downSQL), 0644); err != nil {
		return nil, fmt.Errorf("failed to write down migration: %w", err)
	}
	return migrationFile, nil
}

// ListMigrations lists complete up/down pairs in version order.
func (g *Generator) ListMigrations() ([]MigrationFile, error) {
	entries, err := os.ReadDir(g.migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []MigrationFile{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[string]*MigrationFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()

		// {version}_{name}.{direction}.sql
		version, rest, ok := strings.Cut(fileName, "_")
		if !ok {
			continue
		}
		name, direction := "", ""
		if before, ok := strings.CutSuffix(rest, ".up.sql"); ok {
			name, direction = before, "up"
		} else if before, ok := strings.CutSuffix(rest, ".down.sql"); ok {
			name, direction = before, "down"
		} else {
			continue
		}

		mf, exists := byVersion[version]
		if !exists {
			mf = &MigrationFile{Version: version, Name: name}
			byVersion[version] = mf
		}
		path := filepath.Join(g.migrationsDir, fileName)
		if direction == "up" {
			mf.UpPath = path
		} else {
			mf.DownPath = path
		}
	}

	var migrations []MigrationFile
	for _, mf := range byVersion {
		if mf.UpPath != "" && mf.DownPath != "" {
			migrations = append(migrations, *mf)
		}
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ReadMigration reads the SQL content of a migration pair.
func (g *Generator) ReadMigration(file MigrationFile) (*Migration, error) {
	upSQL, err := os.ReadFile(file.UpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read up migration: %w", err)
	}
	downSQL, err := os.ReadFile(file.DownPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read down migration: %w", err)
	}
	return &Migration{
		Version: file.Version,
		Name:    file.Name,
		UpSQL:   string(upSQL),
		DownSQL: string(downSQL),
	}, nil
}
