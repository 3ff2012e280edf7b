// Package config provides configuration management for scopesync.
package config

import (
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/randalmurphal/scopesync/internal/db/driver"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

const (
	// ConfigDir is the per-project configuration directory.
	ConfigDir = ".scopesync"
	// ConfigFileName is the configuration file name within ConfigDir.
	ConfigFileName = "config.yaml"
	// EnvPrefix prefixes every environment override, e.g. SCOPESYNC_SERVER_ADDR.
	EnvPrefix = "SCOPESYNC"
)

// Config is the scopesync configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Teamwork TeamworkConfig `yaml:"teamwork" mapstructure:"teamwork"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	// Source is the config file that was read, empty when none was found.
	Source string `yaml:"-" mapstructure:"-"`
}

// ServerConfig configures the internal HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects where connections are stored.
type DatabaseConfig struct {
	// Dialect is sqlite or postgres.
	Dialect string `yaml:"dialect" mapstructure:"dialect"`
	// DSN is a SQLite path or a PostgreSQL connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// TeamworkConfig configures the Teamwork API client.
type TeamworkConfig struct {
	AuthURL   string        `yaml:"auth_url" mapstructure:"auth_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RetryMax  int           `yaml:"retry_max" mapstructure:"retry_max"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int           `yaml:"rate_burst" mapstructure:"rate_burst"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is text or json.
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tw := teamwork.DefaultClientConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8420",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Dialect: string(driver.DialectSQLite),
			DSN:     filepath.Join(ConfigDir, "scopesync.db"),
		},
		Teamwork: TeamworkConfig{
			AuthURL:   tw.AuthURL,
			Timeout:   tw.Timeout,
			RetryMax:  tw.RetryMax,
			RateLimit: tw.RateLimit,
			RateBurst: tw.RateBurst,
			UserAgent: tw.UserAgent,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return syncerrors.ErrConfigInvalid("server.addr", "must not be empty")
	}
	if _, err := driver.ParseDialect(c.Database.Dialect); err != nil {
		return syncerrors.ErrConfigInvalid("database.dialect", "must be sqlite or postgres")
	}
	if c.Database.DSN == "" {
		return syncerrors.ErrConfigInvalid("database.dsn", "must not be empty")
	}
	if u, err := url.Parse(c.Teamwork.AuthURL); err != nil || u.Scheme == "" || u.Host == "" {
		return syncerrors.ErrConfigInvalid("teamwork.auth_url", "must be an absolute URL")
	}
	if c.Teamwork.Timeout <= 0 {
		return syncerrors.ErrConfigInvalid("teamwork.timeout", "must be positive")
	}
	if c.Teamwork.RetryMax < 0 {
		return syncerrors.ErrConfigInvalid("teamwork.retry_max", "must not be negative")
	}
	if c.Teamwork.RateLimit > 0 && c.Teamwork.RateBurst < 1 {
		return syncerrors.ErrConfigInvalid("teamwork.rate_burst", "must be at least 1 when rate_limit is set")
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return syncerrors.ErrConfigInvalid("log.level", "must be debug, info, warn or error")
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return syncerrors.ErrConfigInvalid("log.format", "must be text or json")
	}
	return nil
}

// Dialect returns the parsed database dialect. Call Validate first.
func (c *Config) Dialect() driver.Dialect {
	d, _ := driver.ParseDialect(c.Database.Dialect)
	return d
}

// ClientConfig returns the Teamwork client configuration.
func (c *Config) ClientConfig(logger *slog.Logger) teamwork.ClientConfig {
	cc := teamwork.DefaultClientConfig()
	cc.AuthURL = c.Teamwork.AuthURL
	cc.Timeout = c.Teamwork.Timeout
	cc.RetryMax = c.Teamwork.RetryMax
	cc.RateLimit = c.Teamwork.RateLimit
	cc.RateBurst = c.Teamwork.RateBurst
	cc.UserAgent = c.Teamwork.UserAgent
	cc.Logger = logger
	return cc
}

// SlogLevel returns the configured log level, Info when unset.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
