package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// BadgerPathEnv name
	BadgerPathEnv = "BADGER_PATH"
	// PushoverAPITokenEnv name
	PushoverAPITokenEnv = "PUSHOVER_API_TOKEN"
	// PushoverUserKeyEnv name
	PushoverUserKeyEnv = "PUSHOVER_USER_KEY"

	// EnvPrefix for koanf environment overrides, e.g. LIFESPAN_SERVER__ADDR
	EnvPrefix = "LIFESPAN_"
)

// Storage drivers
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Notifier backends
const (
	NotifierLog      = "log"
	NotifierPushover = "pushover"
)

// Config for application setup
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Agent     AgentConfig     `koanf:"agent"`
	Notifier  NotifierConfig  `koanf:"notifier"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

type SchedulerConfig struct {
	// Spec is a cron spec with a seconds field, or an @every descriptor
	Spec     string `koanf:"spec"`
	Timezone string `koanf:"timezone"`
}

type AgentConfig struct {
	Enabled          bool          `koanf:"enabled"`
	SnoozeDelay      time.Duration `koanf:"snooze_delay"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	RelayBuffer      int           `koanf:"relay_buffer"`
}

type NotifierConfig struct {
	Backend  string         `koanf:"backend"`
	Pushover PushoverConfig `koanf:"pushover"`
}

type PushoverConfig struct {
	APIToken string `koanf:"api_token"`
	UserKey  string `koanf:"user_key"`
	Device   string `koanf:"device"`
	// ActionURL is the externally reachable base URL of the local server,
	// used to attach a "Taken" link to pushed notifications
	ActionURL string `koanf:"action_url"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type LogConfig struct {
	Debug      bool   `koanf:"debug"`
	Dir        string `koanf:"dir"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// Load the configuration from defaults, the YAML file at configPath (if it
// exists), a .env file next to the working directory and the environment
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = ExpandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if val, ok := os.LookupEnv(BadgerPathEnv); ok {
		k.Set("storage.path", val)
	}
	if val, ok := os.LookupEnv(PushoverUserKeyEnv); ok {
		k.Set("notifier.pushover.user_key", val)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	cfg.Log.Dir = ExpandPath(cfg.Log.Dir)

	return &cfg, nil
}

// envKey maps LIFESPAN_NOTIFIER__PUSHOVER__USER_KEY to notifier.pushover.user_key
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger, DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver: %s (supported: %s, %s)", c.Storage.Driver, DriverBadger, DriverSQLite)
	}

	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}

	if c.Scheduler.Spec == "" {
		return errors.New("scheduler spec is required")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Notifier.Backend {
	case NotifierLog:
	case NotifierPushover:
		if c.Notifier.Pushover.UserKey == "" {
			return fmt.Errorf("pushover user key is required (set %s or notifier.pushover.user_key)", PushoverUserKeyEnv)
		}
	default:
		return fmt.Errorf("unknown notifier backend: %s (supported: %s, %s)", c.Notifier.Backend, NotifierLog, NotifierPushover)
	}

	if c.Agent.Enabled {
		if c.Agent.SnoozeDelay <= 0 {
			return errors.New("agent snooze_delay must be positive")
		}

		if c.Agent.HandshakeTimeout <= 0 {
			return errors.New("agent handshake_timeout must be positive")
		}
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server addr is required when the server is enabled")
	}

	return nil
}

// Location for time-of-day matching and day keys
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" || c.Scheduler.Timezone == "Local" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Scheduler.Timezone, err)
	}

	return loc, nil
}

// ExpandPath replaces a leading ~/ with the user's home directory
func ExpandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}

		return filepath.Join(home, path[2:])
	}

	return path
}
