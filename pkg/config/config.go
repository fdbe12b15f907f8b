package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for resultblend.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen         string          `yaml:"listen"`
	CORSOrigins    []string        `yaml:"cors_origins"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// AuthConfig contains the API key settings.
type AuthConfig struct {
	// Header is the request header carrying the API key.
	Header string `yaml:"header"`
	// APIKey is the expected key. When empty it is read from APIKeyEnv.
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKeyBcrypt is a bcrypt hash of the expected key, used instead of APIKey.
	APIKeyBcrypt string `yaml:"api_key_bcrypt"`
}

// Configured reports whether an expected API key is available.
func (a AuthConfig) Configured() bool {
	return a.APIKey != "" || a.APIKeyBcrypt != ""
}

// DatabaseConfig contains blend history database settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	MySQL    MySQLConfig    `yaml:"mysql"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// MySQLConfig contains MySQL-specific settings.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// HistoryConfig contains blend history retention settings.
type HistoryConfig struct {
	RetentionDays   int           `yaml:"retention_days"`   // default 30, -1 to disable
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // default 1h
}

// Load reads and parses configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment
// variables, applying defaults and validating the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	resolveAPIKey(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} and $VAR patterns with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}

		return match
	})

	re = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[1:]); ok {
			return val
		}

		return match
	})

	return s
}

// resolveAPIKey falls back to the API key environment variable. An
// unexpanded ${VAR} reference counts as unset.
func resolveAPIKey(cfg *Config) {
	if strings.HasPrefix(cfg.Auth.APIKey, "$") {
		cfg.Auth.APIKey = ""
	}

	if cfg.Auth.APIKey == "" && cfg.Auth.APIKeyBcrypt == "" && cfg.Auth.APIKeyEnv != "" {
		cfg.Auth.APIKey = os.Getenv(cfg.Auth.APIKeyEnv)
	}
}

// applyDefaults sets default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":44001"
	}

	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Server.RateLimit.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.RequestsPerMinute = 600
	}

	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "theapikey"
	}

	if cfg.Auth.APIKeyEnv == "" {
		cfg.Auth.APIKeyEnv = "API_KEY"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}

	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./resultblend.db"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}

	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.MySQL.Port == 0 {
		cfg.Database.MySQL.Port = 3306
	}

	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}

	if cfg.History.CleanupInterval == 0 {
		cfg.History.CleanupInterval = time.Hour
	}
}

// Validate checks the configuration for errors. A missing API key is not an
// error: the server starts and rejects every protected request.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when driver is sqlite")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when driver is postgres")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required when driver is postgres")
		}
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql.host is required when driver is mysql")
		}

		if c.Database.MySQL.Database == "" {
			return fmt.Errorf("mysql.database is required when driver is mysql")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if strings.ContainsAny(c.Auth.Header, " \t:") {
		return fmt.Errorf("auth.header is not a valid header name: %q", c.Auth.Header)
	}

	if c.Auth.APIKeyBcrypt != "" && !strings.HasPrefix(c.Auth.APIKeyBcrypt, "$2") {
		return fmt.Errorf("auth.api_key_bcrypt must be a bcrypt hash")
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must be positive")
	}

	if c.History.RetentionDays < -1 {
		return fmt.Errorf("history.retention_days must be -1 or greater")
	}

	return nil
}

// GetDSN returns the database connection string.
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.Database.MySQL.User,
			c.Database.MySQL.Password,
			c.Database.MySQL.Host,
			c.Database.MySQL.Port,
			c.Database.MySQL.Database,
		)
	default:
		return ""
	}
}

// String returns a sanitized string representation of the config (no secrets).
func (c *Config) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Server: listen=%s request_timeout=%s\n",
		c.Server.Listen, c.Server.RequestTimeout))
	sb.WriteString(fmt.Sprintf("RateLimit: enabled=%t rpm=%d\n",
		c.Server.RateLimit.Enabled, c.Server.RateLimit.RequestsPerMinute))
	sb.WriteString(fmt.Sprintf("Auth: header=%s configured=%t bcrypt=%t\n",
		c.Auth.Header, c.Auth.Configured(), c.Auth.APIKeyBcrypt != ""))
	sb.WriteString(fmt.Sprintf("Database: driver=%s\n", c.Database.Driver))
	sb.WriteString(fmt.Sprintf("History: retention_days=%d cleanup_interval=%s\n",
		c.History.RetentionDays, c.History.CleanupInterval))

	return sb.String()
}
