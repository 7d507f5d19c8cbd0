package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config represents database configuration. URL wins over the discrete
// fields when set.
type Config struct {
	URL             string
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		Database: "procurement",
		User:     "postgres",
		SSLMode:  "prefer",
		MaxConns: 10,
		MinConns: 2,
	}
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// ConnectWithURL opens a pool from a connection URL.
func ConnectWithURL(ctx context.Context, url string) (*pgxpool.Pool, error) {
	return Connect(ctx, Config{URL: url})
}

// ConnString renders the config as a libpq connection string.
func (c Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}

	parts := []string{
		"host=" + quoteValue(c.Host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + quoteValue(c.Database),
		"sslmode=" + quoteValue(sslMode),
	}
	if c.User != "" {
		parts = append(parts, "user="+quoteValue(c.User))
	}
	if c.Password != "" {
		parts = append(parts, "password="+quoteValue(c.Password))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes a keyword/value pair value when it needs it.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
