package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	for _, env := range envBindings {
		t.Setenv(env, "")
		_ = os.Unsetenv(env)
	}

	cfg, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %s", cfg.LogLevel)
	}
	if cfg.Profile.Latency != time.Second {
		t.Errorf("expected latency 1s, got %v", cfg.Profile.Latency)
	}
	if cfg.Profile.ChunkDelay != 100*time.Millisecond {
		t.Errorf("expected chunk delay 100ms, got %v", cfg.Profile.ChunkDelay)
	}
	if cfg.Profile.FailureRate != 0.1 {
		t.Errorf("expected failure rate 0.1, got %v", cfg.Profile.FailureRate)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("expected addr :8080, got %s", cfg.Addr())
	}
}

func TestFromViperEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PROFILE_LATENCY", "250ms")
	t.Setenv("PROFILE_CHUNK_DELAY", "0s")
	t.Setenv("PROFILE_FAILURE_RATE", "0.5")

	cfg, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Profile.Latency != 250*time.Millisecond || cfg.Profile.ChunkDelay != 0 {
		t.Errorf("unexpected delays %+v", cfg.Profile)
	}
	if cfg.Profile.FailureRate != 0.5 {
		t.Errorf("expected failure rate 0.5, got %v", cfg.Profile.FailureRate)
	}
}

func TestFromViperInvalid(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"PORT", "http"},
		{"PORT", "70000"},
		{"LOG_LEVEL", "chatty"},
		{"PROFILE_LATENCY", "soon"},
		{"PROFILE_LATENCY", "-1s"},
		{"PROFILE_CHUNK_DELAY", "-5ms"},
		{"PROFILE_FAILURE_RATE", "often"},
		{"PROFILE_FAILURE_RATE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			if _, err := FromViper(viper.New()); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PROFILE_FAILURE_RATE=0.25\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	// godotenv sets the variable directly; register cleanup through t.Setenv first.
	t.Setenv("PROFILE_FAILURE_RATE", "")
	_ = os.Unsetenv("PROFILE_FAILURE_RATE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile.FailureRate != 0.25 {
		t.Fatalf("expected failure rate from .env, got %v", cfg.Profile.FailureRate)
	}
}

func TestLoadWithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
