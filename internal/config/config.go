// Package config loads ~/.chatsync/config.toml and its environment overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultLivenessInterval = 30 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultLogLevel         = "info"
	DefaultRateLimit        = 5.0
)

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultAccount   string   `toml:"default_account"`
	Host             string   `toml:"host"`
	APIBase          string   `toml:"api_base"`
	AccessToken      string   `toml:"access_token"`
	LivenessInterval Duration `toml:"liveness_interval"`
	ConnectTimeout   Duration `toml:"connect_timeout"`
	MetricsAddr      string   `toml:"metrics_addr"`
	LogLevel         string   `toml:"log_level"`
	RateLimit        float64  `toml:"rate_limit"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads path if it exists, applies the environment overlay
// and fills defaults. A missing file is not an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		cfg = &Config{}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays CHATSYNC_* variables onto cfg.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"CHATSYNC_ACCOUNT":      &c.DefaultAccount,
		"CHATSYNC_HOST":         &c.Host,
		"CHATSYNC_API_BASE":     &c.APIBase,
		"CHATSYNC_ACCESS_TOKEN": &c.AccessToken,
		"CHATSYNC_METRICS_ADDR": &c.MetricsAddr,
		"CHATSYNC_LOG_LEVEL":    &c.LogLevel,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	dur := map[string]*Duration{
		"CHATSYNC_LIVENESS_INTERVAL": &c.LivenessInterval,
		"CHATSYNC_CONNECT_TIMEOUT":   &c.ConnectTimeout,
	}
	for key, dst := range dur {
		if v, ok := os.LookupEnv(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	if v, ok := os.LookupEnv("CHATSYNC_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CHATSYNC_RATE_LIMIT: %w", err)
		}
		c.RateLimit = f
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.LivenessInterval.Duration <= 0 {
		c.LivenessInterval.Duration = DefaultLivenessInterval
	}
	if c.ConnectTimeout.Duration <= 0 {
		c.ConnectTimeout.Duration = DefaultConnectTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.APIBase == "" && c.Host != "" {
		c.APIBase = "https://" + c.Host
	}
}
