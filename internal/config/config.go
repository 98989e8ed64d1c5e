// Package config loads sheetsync settings from defaults, an optional config
// file and the environment, and validates them before anything connects.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sheetsync/internal/etl"
	"sheetsync/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. SHEETSYNC_SYNC_GATE.
const EnvPrefix = "SHEETSYNC"

// Config holds all application configuration.
type Config struct {
	Mongo   MongoConfig            `mapstructure:"mongo"`
	Sources map[string]etl.Locator `mapstructure:"sources"`
	Sync    SyncConfig             `mapstructure:"sync"`
	History HistoryConfig          `mapstructure:"history"`
	Log     LogConfig              `mapstructure:"log"`
}

// MongoConfig holds the sink connection settings.
type MongoConfig struct {
	// URI is the connection string; MONGO_URI is honoured as well.
	URI string `mapstructure:"uri"`

	// Database is the target database (default: wellbe). Empty takes it from the URI path.
	Database string `mapstructure:"database"`

	// ConnectTimeout bounds server selection and the initial ping (default: 10s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// SyncConfig controls how a run behaves.
type SyncConfig struct {
	// Gate is "all" (every fetch and clean must succeed before any write) or "independent".
	Gate string `mapstructure:"gate"`

	// Concurrent runs fetches and pipelines in parallel.
	Concurrent bool `mapstructure:"concurrent"`

	// Timeout bounds a whole run (default: 5m)
	Timeout time.Duration `mapstructure:"timeout"`

	// FetchTimeout bounds each source fetch (default: 30s)
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// HistoryConfig selects where run history is recorded.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite | postgres | mysql
	DSN     string `mapstructure:"dsn"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // optional rotated log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mongo.database", "wellbe")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("sync.gate", string(etl.GateAll))
	v.SetDefault("sync.concurrent", false)
	v.SetDefault("sync.timeout", 5*time.Minute)
	v.SetDefault("sync.fetch_timeout", 30*time.Second)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.driver", storage.DriverSQLite)
	v.SetDefault("history.dsn", defaultHistoryPath())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sheetsync", "history.db")
	}
	return filepath.Join(home, ".sheetsync", "history.db")
}

// Load reads configuration into a validated Config. configFile may be empty,
// in which case sheetsync.{yaml,toml,json} is looked up in the working
// directory and ~/.config/sheetsync; a missing file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sheetsync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sheetsync"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config load: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	for name, loc := range cfg.Sources {
		loc.Name = name
		cfg.Sources[name] = loc
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// bindEnv registers keys AutomaticEnv cannot discover on its own: nested
// source keys and the bare MONGO_URI.
func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("mongo.uri", EnvPrefix+"_MONGO_URI", "MONGO_URI"); err != nil {
		return err
	}
	for _, name := range etl.PipelineNames {
		for _, field := range []string{"url", "token"} {
			key := "sources." + name + "." + field
			env := EnvPrefix + "_SOURCES_" + strings.ToUpper(name) + "_" + strings.ToUpper(field)
			if err := v.BindEnv(key, env); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// Presence is checked by RequireSink; preview and history never connect.
	if uri := strings.TrimSpace(c.Mongo.URI); uri != "" &&
		!strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		errs = append(errs, errors.New("mongo.uri must start with mongodb:// or mongodb+srv://"))
	}
	if c.Mongo.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("mongo.connect_timeout must be positive"))
	}

	for _, name := range etl.PipelineNames {
		if strings.TrimSpace(c.Sources[name].URL) == "" {
			errs = append(errs, fmt.Errorf("sources.%s.url is required", name))
		}
	}
	for name := range c.Sources {
		if !isPipeline(name) {
			errs = append(errs, fmt.Errorf("sources.%s does not match any pipeline", name))
		}
	}

	if _, err := etl.ParseGateMode(c.Sync.Gate); err != nil {
		errs = append(errs, fmt.Errorf("sync.gate: %w", err))
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, errors.New("sync.timeout must be positive"))
	}
	if c.Sync.FetchTimeout <= 0 {
		errs = append(errs, errors.New("sync.fetch_timeout must be positive"))
	}

	if c.History.Enabled {
		switch c.History.Driver {
		case storage.DriverSQLite, storage.DriverPostgres, storage.DriverMySQL:
		default:
			errs = append(errs, fmt.Errorf("history.driver %q is not one of sqlite, postgres, mysql", c.History.Driver))
		}
		if c.History.DSN == "" {
			errs = append(errs, errors.New("history.dsn is required when history is enabled"))
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// RequireSink reports whether the configuration can reach the sink.
func (c *Config) RequireSink() error {
	if strings.TrimSpace(c.Mongo.URI) == "" {
		return errors.New("mongo.uri is required (set MONGO_URI)")
	}
	return nil
}

// Gate returns the parsed gate mode. Only valid after Validate.
func (c *Config) Gate() etl.GateMode {
	g, _ := etl.ParseGateMode(c.Sync.Gate)
	return g
}

func isPipeline(name string) bool {
	for _, p := range etl.PipelineNames {
		if p == name {
			return true
		}
	}
	return false
}
