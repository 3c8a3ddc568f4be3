// Package config loads eavq settings from defaults, an optional YAML file
// and EAVQ_ environment variables, in increasing order of precedence.
//
// Nested keys map to environment variables with dots replaced by
// underscores: paths.maxDepth is EAVQ_PATHS_MAXDEPTH.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/querysql"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "EAVQ"

// Config is the complete eavq configuration.
type Config struct {
	Paths  PathsConfig `mapstructure:"paths"`
	Store  StoreConfig `mapstructure:"store"`
	Log    LogConfig   `mapstructure:"log"`
	Schema string      `mapstructure:"schema"` // directory of CUE entity definitions
}

// PathsConfig bounds property path depth.
type PathsConfig struct {
	Tier     string `mapstructure:"tier"`     // open or pro
	MaxDepth int    `mapstructure:"maxDepth"` // pro-tier limit, 0 for none
}

// StoreConfig selects the reference store.
type StoreConfig struct {
	Dialect  string `mapstructure:"dialect"`  // sqlite3 or postgres
	Database string `mapstructure:"database"` // SQLite file path
	DSN      string `mapstructure:"dsn"`      // PostgreSQL connection string
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn or error
}

// Load reads configPath when it is not empty, then applies environment
// overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.tier", pathres.TierOpen.String())
	v.SetDefault("paths.maxDepth", 0)

	v.SetDefault("store.dialect", string(querysql.SQLite))
	v.SetDefault("store.database", "eavq.db")
	v.SetDefault("store.dsn", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("schema", "schema")
}

// Validate checks every enumerated setting.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if _, err := c.Dialect(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Policy is the path-depth policy.
func (c *Config) Policy() (pathres.Policy, error) {
	tier, err := pathres.ParseTier(c.Paths.Tier)
	if err != nil {
		return pathres.Policy{}, err
	}
	if c.Paths.MaxDepth < 0 {
		return pathres.Policy{}, fmt.Errorf("maxDepth must not be negative, got %d", c.Paths.MaxDepth)
	}
	return pathres.Policy{Tier: tier, MaxDepth: c.Paths.MaxDepth}, nil
}

// Dialect is the store's SQL dialect.
func (c *Config) Dialect() (querysql.Dialect, error) {
	return querysql.ParseDialect(c.Store.Dialect)
}

// Level is the minimum log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelWarn, fmt.Errorf("unknown level %q", c.Log.Level)
	}
	return l, nil
}
