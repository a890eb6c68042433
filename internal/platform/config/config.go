// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the process configuration.
type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Profile  struct {
		Latency     time.Duration `mapstructure:"latency"`
		ChunkDelay  time.Duration `mapstructure:"chunk_delay"`
		FailureRate float64       `mapstructure:"failure_rate"`
	} `mapstructure:"profile"`
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

var defaults = map[string]any{
	"port":                 "8080",
	"log_level":            "info",
	"profile.latency":      "1s",
	"profile.chunk_delay":  "100ms",
	"profile.failure_rate": 0.1,
}

var envBindings = map[string]string{
	"port":                 "PORT",
	"log_level":            "LOG_LEVEL",
	"profile.latency":      "PROFILE_LATENCY",
	"profile.chunk_delay":  "PROFILE_CHUNK_DELAY",
	"profile.failure_rate": "PROFILE_FAILURE_RATE",
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(viper.New())
}

// FromViper applies defaults and environment bindings to v, then decodes
// and validates the result.
func FromViper(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: PORT must be between 1 and 65535, got %q", ErrInvalid, c.Port)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %w", ErrInvalid, err)
	}
	if c.Profile.Latency < 0 {
		return fmt.Errorf("%w: PROFILE_LATENCY must not be negative", ErrInvalid)
	}
	if c.Profile.ChunkDelay < 0 {
		return fmt.Errorf("%w: PROFILE_CHUNK_DELAY must not be negative", ErrInvalid)
	}
	if c.Profile.FailureRate < 0 || c.Profile.FailureRate > 1 {
		return fmt.Errorf("%w: PROFILE_FAILURE_RATE must be within [0, 1], got %v", ErrInvalid, c.Profile.FailureRate)
	}
	return nil
}
