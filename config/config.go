// Package config loads taskboard settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is the directory name used under the XDG base directories.
	AppName = "taskboard"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TASKBOARD"
	// ConfigFile is the file name looked up in the config directory.
	ConfigFile = "config.yaml"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendTables = "tables"
	BackendMemory = "memory"
)

// Config is the complete runtime configuration.
type Config struct {
	Debug   bool          `mapstructure:"debug"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Storage StorageConfig `mapstructure:"storage"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Dedupe  DedupeConfig  `mapstructure:"dedupe"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Redis   RedisConfig  `mapstructure:"redis"`
	Tables  TablesConfig `mapstructure:"tables"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type TablesConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Table            string `mapstructure:"table"`
	Partition        string `mapstructure:"partition"`
}

type NotifyConfig struct {
	Queue QueueConfig        `mapstructure:"queue"`
	Redis RedisChannelConfig `mapstructure:"redis"`
}

type QueueConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Name             string `mapstructure:"name"`
}

type RedisChannelConfig struct {
	Channel string `mapstructure:"channel"`
}

// AuthConfig enables bearer token checks on the HTTP API when either a
// shared secret or a JWKS URL is set.
type AuthConfig struct {
	Secret   string `mapstructure:"secret"`
	JWKSURL  string `mapstructure:"jwks_url"`
	Audience string `mapstructure:"audience"`
	Issuer   string `mapstructure:"issuer"`
}

type DedupeConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether requests must carry a token.
func (a AuthConfig) Enabled() bool {
	return a.Secret != "" || a.JWKSURL != ""
}

// legacyEnv maps keys to the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"debug":                            "DEBUG",
	"storage.redis.url":                "REDIS_CONNECTION_STRING",
	"storage.tables.connection_string": "STORAGE_CONNECTION_STRING",
	"notify.queue.connection_string":   "STORAGE_CONNECTION_STRING",
	"dedupe.ttl":                       "DEDUPER_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite.path", filepath.Join(DefaultDataDir(), "taskboard.db"))
	v.SetDefault("storage.redis.url", "")
	v.SetDefault("storage.redis.prefix", "taskboard:")
	v.SetDefault("storage.tables.connection_string", "")
	v.SetDefault("storage.tables.table", "taskboard")
	v.SetDefault("storage.tables.partition", "taskboard")
	v.SetDefault("notify.queue.connection_string", "")
	v.SetDefault("notify.queue.name", "")
	v.SetDefault("notify.redis.channel", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("dedupe.ttl", 24*time.Hour)
}

// Load builds the configuration. path may be empty, in which case
// $TASKBOARD_CONFIG and then the default config file are tried; a missing
// default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, err
		}
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := readFile(v, path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v.ReadInConfig()
}

// Validate checks that the selected backend and optional features are
// fully configured.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
	case BackendRedis:
		if c.Storage.Redis.URL == "" {
			return errors.New("storage.redis.url is required for the redis backend")
		}
	case BackendTables:
		if c.Storage.Tables.ConnectionString == "" || c.Storage.Tables.Table == "" {
			return errors.New("storage.tables.connection_string and storage.tables.table are required for the tables backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Notify.Queue.Name != "" && c.Notify.Queue.ConnectionString == "" {
		return errors.New("notify.queue.connection_string is required when notify.queue.name is set")
	}
	if c.Notify.Redis.Channel != "" && c.Storage.Redis.URL == "" {
		return errors.New("notify.redis.channel needs storage.redis.url")
	}
	if c.Dedupe.TTL <= 0 {
		return fmt.Errorf("invalid dedupe.ttl %v: must be greater than zero", c.Dedupe.TTL)
	}
	if c.Auth.Secret != "" && c.Auth.JWKSURL != "" {
		return errors.New("auth.secret and auth.jwks_url are mutually exclusive")
	}
	return nil
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/taskboard or
// $HOME/.config/taskboard.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultConfigPath returns the config file inside DefaultConfigDir.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), ConfigFile)
}

// DefaultDataDir returns $XDG_DATA_HOME/taskboard or
// $HOME/.local/share/taskboard.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".local", "share", AppName)
}
