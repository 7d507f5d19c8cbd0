// Package commands implements the procuredb command line.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/config"
	"github.com/marshallshelly/procuredb/internal/logger"
	"github.com/marshallshelly/procuredb/pkg/runtime"
)

var (
	configFile    string
	dbURL         string
	migrationsDir string
	verbose       bool
	jsonOutput    bool
)

var rootCmd = &cobra.Command{
	Use:   "procuredb",
	Short: "procuredb - procurement data layer with row level security",
	Long: `procuredb owns the procurement platform's PostgreSQL schema: users and their
subscriptions, orders, suggestions, branding, feedback and trend data.

Every table is protected by row security policies declared once in Go and
rendered into migrations. The same rules are evaluated in process by the
HTTP API before each statement.

Configuration comes from --config, a .env file and PROCUREDB_* variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL, overrides the configured database")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "Directory for migration files, overrides app.migrations_dir")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if migrationsDir != "" {
		cfg.App.MigrationsDir = migrationsDir
	}
	if verbose {
		cfg.Log.Level, cfg.Log.Format = "debug", "console"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env)), nil
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := runtime.Connect(ctx, cfg.Database.Runtime())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}
