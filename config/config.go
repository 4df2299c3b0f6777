// Package config provides configuration loading and validation for the
// scheduler daemon. Values are layered: defaults, then an optional config
// file, then environment variables with the RECUR_ prefix.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete daemon configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Scheduler  SchedulerConfig
	WorkerPool WorkerPoolConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string // ":memory:" for an in-memory database
}

// SchedulerConfig controls the automatic batch cadence.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// WorkerPoolConfig bounds per-batch recurrence fan-out.
type WorkerPoolConfig struct {
	Size int
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and environment variables apply; a missing file at the default
// search paths is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RECUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("schedulerd")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file: defaults + environment only.
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("scheduler.enabled"),
			Interval: v.GetDuration("scheduler.interval"),
		},
		WorkerPool: WorkerPoolConfig{
			Size: v.GetInt("worker_pool.size"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.path", "recurrences.db")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 24*time.Hour)

	v.SetDefault("worker_pool.size", 4)
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database path must not be empty")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Minute {
		return fmt.Errorf("config: scheduler interval %s is below the 1m minimum", c.Scheduler.Interval)
	}
	if c.WorkerPool.Size <= 0 {
		return fmt.Errorf("config: worker pool size must be positive, got %d", c.WorkerPool.Size)
	}
	return nil
}
