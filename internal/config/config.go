// Package config loads procuredb settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/marshallshelly/procuredb/pkg/runtime"
)

// EnvPrefix prefixes every environment variable, e.g. PROCUREDB_DATABASE_URL.
const EnvPrefix = "PROCUREDB"

type Config struct {
	App      AppSettings      `mapstructure:"app"`
	Database DatabaseSettings `mapstructure:"database"`
	HTTP     HTTPSettings     `mapstructure:"http"`
	Auth     AuthSettings     `mapstructure:"auth"`
	Mail     MailSettings     `mapstructure:"mail"`
	Storage  StorageSettings  `mapstructure:"storage"`
	Log      LogSettings      `mapstructure:"log"`
}

type AppSettings struct {
	Name          string `mapstructure:"name"`
	Env           string `mapstructure:"env"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	BaseURL       string `mapstructure:"base_url"`
}

type DatabaseSettings struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type HTTPSettings struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr is the listen address.
func (h HTTPSettings) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type AuthSettings struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	ResetTokenTTL time.Duration `mapstructure:"reset_token_ttl"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// MailSettings configures outgoing SMTP. An empty host disables sending.
type MailSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// StorageSettings configures the S3 bucket for brand logos. An empty bucket
// disables uploads.
type StorageSettings struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicURL       string `mapstructure:"public_url"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Runtime converts the database settings to a connection config.
func (d DatabaseSettings) Runtime() runtime.Config {
	return runtime.Config{
		URL:             d.URL,
		Host:            d.Host,
		Port:            d.Port,
		Database:        d.Database,
		User:            d.User,
		Password:        d.Password,
		SSLMode:         d.SSLMode,
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		MaxConnLifetime: d.MaxConnLifetime,
	}
}

// Load reads .env (if present), then an optional config file, then the
// environment. Later sources win.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if err := bindEnvs(v, keys); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.App.Env == "production" && c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("auth.jwt_secret must be set in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

const defaultJWTSecret = "procuredb-development-secret"

var keys = []string{
	"app.name",
	"app.env",
	"app.migrations_dir",
	"app.base_url",
	"database.url",
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.database",
	"database.ssl_mode",
	"database.max_conns",
	"database.min_conns",
	"database.max_conn_lifetime",
	"http.host",
	"http.port",
	"http.read_timeout",
	"http.write_timeout",
	"auth.jwt_secret",
	"auth.token_ttl",
	"auth.reset_token_ttl",
	"auth.bcrypt_cost",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.from",
	"storage.bucket",
	"storage.region",
	"storage.endpoint",
	"storage.access_key_id",
	"storage.secret_access_key",
	"storage.public_url",
	"storage.use_path_style",
	"log.level",
	"log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "procuredb")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.migrations_dir", "./migrations")
	v.SetDefault("app.base_url", "http://localhost:8080")

	db := runtime.DefaultConfig()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.database", db.Database)
	v.SetDefault("database.ssl_mode", db.SSLMode)
	v.SetDefault("database.max_conns", db.MaxConns)
	v.SetDefault("database.min_conns", db.MinConns)
	v.SetDefault("database.max_conn_lifetime", db.MaxConnLifetime)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")

	v.SetDefault("auth.jwt_secret", defaultJWTSecret)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.reset_token_ttl", "1h")
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@procuredb.local")

	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, EnvPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
