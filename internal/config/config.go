// Package config loads server settings from defaults, an optional TOML file
// and TRACKER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"tracker/internal/util"
)

// Duration is a time.Duration written as "90s" or "1h" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every runtime setting.
type Config struct {
	Addr          string   `toml:"addr"`
	DBPath        string   `toml:"db_path"`
	LogLevel      string   `toml:"log_level"`
	LogFormat     string   `toml:"log_format"`
	SweepInterval Duration `toml:"sweep_interval"`
	DueSoonWindow Duration `toml:"due_soon_window"`
	PublishBuffer int      `toml:"publish_buffer"`
	StaticDir     string   `toml:"static_dir"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "data/tracker.db",
		LogLevel:      "info",
		LogFormat:     "json",
		SweepInterval: Duration(time.Minute),
		DueSoonWindow: Duration(24 * time.Hour),
		PublishBuffer: 256,
		StaticDir:     "web/dist",
	}
}

// Load builds the configuration. An empty path reads TRACKER_CONFIG; when that
// is empty too no file is read.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TRACKER_CONFIG"))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				row, col := derr.Position()
				return Config{}, fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
			}
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = util.EnvOrDefault("TRACKER_ADDR", cfg.Addr)
	cfg.DBPath = util.EnvOrDefault("TRACKER_DB_PATH", cfg.DBPath)
	cfg.LogLevel = util.EnvOrDefault("TRACKER_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = util.EnvOrDefault("TRACKER_LOG_FORMAT", cfg.LogFormat)
	cfg.SweepInterval = Duration(util.EnvDurationOrDefault("TRACKER_SWEEP_INTERVAL", cfg.SweepInterval.Std()))
	cfg.DueSoonWindow = Duration(util.EnvDurationOrDefault("TRACKER_DUE_SOON_WINDOW", cfg.DueSoonWindow.Std()))
	cfg.PublishBuffer = util.EnvIntOrDefault("TRACKER_PUBLISH_BUFFER", cfg.PublishBuffer)
	cfg.StaticDir = util.EnvOrDefault("TRACKER_STATIC_DIR", cfg.StaticDir)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config: addr must not be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: db_path must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log_format %q is not json or text", c.LogFormat)
	}
	if c.SweepInterval.Std() <= 0 {
		return errors.New("config: sweep_interval must be positive")
	}
	if c.DueSoonWindow.Std() < 0 {
		return errors.New("config: due_soon_window must not be negative")
	}
	if c.PublishBuffer <= 0 {
		return errors.New("config: publish_buffer must be positive")
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
