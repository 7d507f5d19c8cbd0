package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/procuredb/cmd/procuredb/output"
	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/pkg/migration"
)

var (
	migrationName string
	empty         bool
	showDown      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate migration files",
	Long: `Generate a migration that creates the procurement schema from the Go models:
the application role, every table with its constraints and indexes, the
policy helper functions, the guard triggers, row security and policies.

Examples:
  procuredb generate --name create_procurement_schema
  procuredb generate --name backfill_orders --empty   # Empty files for hand written SQL`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate()
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema SQL without writing files",
	RunE: func(cmd *cobra.Command, args []string) error {
		bp, err := blueprint()
		if err != nil {
			return err
		}
		up, down, err := migration.NewPlanner().GenerateMigration(bp)
		if err != nil {
			return err
		}
		if showDown {
			_, err = fmt.Fprintln(output.Out, down)
			return err
		}
		_, err = fmt.Fprintln(output.Out, up)
		return err
	},
}

func init() {
	rootCmd.AddCommand(generateCmd, schemaCmd)

	generateCmd.Flags().StringVarP(&migrationName, "name", "n", "", "Migration name (required)")
	generateCmd.Flags().BoolVar(&empty, "empty", false, "Generate empty migration for manual editing")
	_ = generateCmd.MarkFlagRequired("name")

	schemaCmd.Flags().BoolVar(&showDown, "down", false, "Print the down migration instead")
}

func blueprint() (*migration.Blueprint, error) {
	reg, err := models.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to register models: %w", err)
	}
	set, err := models.Policies()
	if err != nil {
		return nil, fmt.Errorf("failed to build policies: %w", err)
	}
	return models.Blueprint(reg, set)
}

func runGenerate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	generator := migration.NewGenerator(cfg.App.MigrationsDir)

	var file *migration.MigrationFile
	if empty {
		file, err = generator.GenerateEmpty(migrationName)
	} else {
		var bp *migration.Blueprint
		if bp, err = blueprint(); err != nil {
			return err
		}
		output.Section("Schema")
		for _, t := range bp.Tables {
			output.Muted("  + %s (%d columns, %d policies)", t.Name, len(t.Columns), len(t.Policies))
		}
		output.Muted("  + %d function(s), role %s", len(bp.Functions), bp.Role)
		file, err = generator.Generate(migrationName, bp)
	}
	if err != nil {
		return fmt.Errorf("failed to generate migration: %w", err)
	}

	output.Success("Created migration: %s", file.Version)
	output.Muted("  Up:   %s", file.UpPath)
	output.Muted("  Down: %s", file.DownPath)
	if empty {
		output.Info("Edit the SQL files manually to add your migration logic.")
	} else {
		output.Info("Review the generated SQL files before applying the migration.")
	}
	return nil
}
