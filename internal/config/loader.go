package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration. Load order (later sources override earlier):
//  1. Built-in defaults
//  2. Config file: path if given, else .scopesync/config.yaml or
//     ~/.scopesync/config.yaml (optional)
//  3. Environment variables (SCOPESYNC_*)
//
// An explicitly given path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(ConfigDir)
		v.AddConfigPath("$HOME/" + ConfigDir)
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".yaml"))
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply to it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("teamwork.auth_url", d.Teamwork.AuthURL)
	v.SetDefault("teamwork.timeout", d.Teamwork.Timeout)
	v.SetDefault("teamwork.retry_max", d.Teamwork.RetryMax)
	v.SetDefault("teamwork.rate_limit", d.Teamwork.RateLimit)
	v.SetDefault("teamwork.rate_burst", d.Teamwork.RateBurst)
	v.SetDefault("teamwork.user_agent", d.Teamwork.UserAgent)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
