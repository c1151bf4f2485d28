// Package config loads and validates agent config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds agent configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the storefront backend base URL (e.g. https://api.shop.example).
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// RealtimeURL is the websocket endpoint for the realtime channel; empty disables it.
	RealtimeURL string `mapstructure:"REALTIME_URL"`
	// CredentialDBPath is the SQLite file holding persisted credentials (":memory:" for tests).
	CredentialDBPath string `mapstructure:"CREDENTIAL_DB_PATH"`
	// SessionTimeout is the total inactivity allowance (e.g. "30m").
	SessionTimeout string `mapstructure:"SESSION_TIMEOUT"`
	// WarningWindow is how long before expiry the warning is raised (e.g. "60s").
	WarningWindow string `mapstructure:"WARNING_WINDOW"`
	// PollInterval is the monitor's re-evaluation cadence (e.g. "30s").
	PollInterval string `mapstructure:"POLL_INTERVAL"`
	// HeartbeatInterval is the realtime heartbeat cadence (e.g. "30s").
	HeartbeatInterval string `mapstructure:"HEARTBEAT_INTERVAL"`
	// MetricsAddr is the Prometheus listen address; empty disables the endpoint.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// LoginURL is where forced logout sends the user (printed / opened by the UI shell).
	LoginURL string `mapstructure:"LOGIN_URL"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("REALTIME_URL", "")
	v.SetDefault("CREDENTIAL_DB_PATH", "session.db")
	v.SetDefault("SESSION_TIMEOUT", "30m")
	v.SetDefault("WARNING_WINDOW", "60s")
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("LOGIN_URL", "/login")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("config: API_BASE_URL must be set")
	}
	if cfg.CredentialDBPath == "" {
		return nil, errors.New("config: CREDENTIAL_DB_PATH must be set")
	}
	if cfg.SessionTimeoutDuration() <= cfg.WarningWindowDuration() {
		return nil, errors.New("config: SESSION_TIMEOUT must be longer than WARNING_WINDOW")
	}

	return &cfg, nil
}

// SessionTimeoutDuration parses SessionTimeout. Returns 30m if unset or invalid.
func (c *Config) SessionTimeoutDuration() time.Duration {
	return parseDuration(c.SessionTimeout, 30*time.Minute)
}

// WarningWindowDuration parses WarningWindow. Returns 60s if unset or invalid.
func (c *Config) WarningWindowDuration() time.Duration {
	return parseDuration(c.WarningWindow, 60*time.Second)
}

// PollIntervalDuration parses PollInterval. Returns 30s if unset or invalid.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDuration(c.PollInterval, 30*time.Second)
}

// HeartbeatIntervalDuration parses HeartbeatInterval. Returns 30s if unset or invalid.
func (c *Config) HeartbeatIntervalDuration() time.Duration {
	return parseDuration(c.HeartbeatInterval, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
