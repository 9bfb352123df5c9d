// Package config loads the application configuration from an INI file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

// Limit defaults. Invalid or non-positive values in the config file fall
// back to these.
const (
	DefaultMaxRequestsPerMinute = 20
	DefaultIntervalMs           = 60000
	DefaultQueueLimit           = 120
	DefaultMaxRetryAttempts     = 3
	DefaultBaseRetryDelayMs     = 5000
	DefaultHourlyLimit          = 200
	DefaultDailyLimit           = 2000
	DefaultSuccessTTLMinutes    = 60
	DefaultErrorTTLMinutes      = 2
)

// CRMConfig is the CRM API connection block.
type CRMConfig struct {
	BaseURL string `ini:"base_url"`
	APIKey  string `ini:"api_key"`
}

// AdsConfig is the advertising API connection block.
type AdsConfig struct {
	BaseURL        string `ini:"base_url"`
	DeveloperToken string `ini:"developer_token"`
	CustomerID     string `ini:"customer_id"`
}

// LimitsConfig controls scheduler pacing, retries, advisory quotas and cache
// TTLs. All values are positive integers; anything else falls back to the
// default.
type LimitsConfig struct {
	MaxRequestsPerMinute int `ini:"max_requests_per_minute"`
	IntervalMs           int `ini:"interval_ms"`
	QueueLimit           int `ini:"queue_limit"`
	MaxRetryAttempts     int `ini:"max_retry_attempts"`
	BaseRetryDelayMs     int `ini:"base_retry_delay_ms"`
	HourlyLimit          int `ini:"hourly_limit"`
	DailyLimit           int `ini:"daily_limit"`
	SuccessTTLMinutes    int `ini:"success_ttl_minutes"`
	ErrorTTLMinutes      int `ini:"error_ttl_minutes"`
}

// Config is the full application configuration.
type Config struct {
	CRM    CRMConfig
	Ads    AdsConfig
	Limits LimitsConfig
}

// Validation errors.
var (
	ErrMissingCRMBaseURL = errors.New("crm base_url is required")
	ErrMissingCRMAPIKey  = errors.New("crm api_key is required")
)

// DefaultPath returns the default config file location:
// ~/.config/adsreport/config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "adsreport", "config"), nil
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Limits: LimitsConfig{
			MaxRequestsPerMinute: DefaultMaxRequestsPerMinute,
			IntervalMs:           DefaultIntervalMs,
			QueueLimit:           DefaultQueueLimit,
			MaxRetryAttempts:     DefaultMaxRetryAttempts,
			BaseRetryDelayMs:     DefaultBaseRetryDelayMs,
			HourlyLimit:          DefaultHourlyLimit,
			DailyLimit:           DefaultDailyLimit,
			SuccessTTLMinutes:    DefaultSuccessTTLMinutes,
			ErrorTTLMinutes:      DefaultErrorTTLMinutes,
		},
	}
}

// Load reads the config file at path. A missing file yields the defaults and
// no error. Invalid or non-positive limit values silently fall back to their
// defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if err := file.Section("crm").MapTo(&cfg.CRM); err != nil {
		return nil, fmt.Errorf("failed to parse [crm] section: %w", err)
	}
	if err := file.Section("ads").MapTo(&cfg.Ads); err != nil {
		return nil, fmt.Errorf("failed to parse [ads] section: %w", err)
	}

	// Limit values are mapped one by one so a single malformed key falls
	// back to its default instead of failing the load.
	limits := file.Section("limits")
	cfg.Limits.MaxRequestsPerMinute = intOr(limits, "max_requests_per_minute", DefaultMaxRequestsPerMinute)
	cfg.Limits.IntervalMs = intOr(limits, "interval_ms", DefaultIntervalMs)
	cfg.Limits.QueueLimit = intOr(limits, "queue_limit", DefaultQueueLimit)
	cfg.Limits.MaxRetryAttempts = intOr(limits, "max_retry_attempts", DefaultMaxRetryAttempts)
	cfg.Limits.BaseRetryDelayMs = intOr(limits, "base_retry_delay_ms", DefaultBaseRetryDelayMs)
	cfg.Limits.HourlyLimit = intOr(limits, "hourly_limit", DefaultHourlyLimit)
	cfg.Limits.DailyLimit = intOr(limits, "daily_limit", DefaultDailyLimit)
	cfg.Limits.SuccessTTLMinutes = intOr(limits, "success_ttl_minutes", DefaultSuccessTTLMinutes)
	cfg.Limits.ErrorTTLMinutes = intOr(limits, "error_ttl_minutes", DefaultErrorTTLMinutes)

	return cfg, nil
}

// Validate checks the fields required to talk to the CRM API.
func (c *Config) Validate() error {
	if c.CRM.BaseURL == "" {
		return ErrMissingCRMBaseURL
	}
	if c.CRM.APIKey == "" {
		return ErrMissingCRMAPIKey
	}
	return nil
}

// Interval returns the scheduler window length.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Limits.IntervalMs) * time.Millisecond
}

// BaseRetryDelay returns the retry backoff seed.
func (c *Config) BaseRetryDelay() time.Duration {
	return time.Duration(c.Limits.BaseRetryDelayMs) * time.Millisecond
}

// SuccessTTL returns how long finished reports stay cached.
func (c *Config) SuccessTTL() time.Duration {
	return time.Duration(c.Limits.SuccessTTLMinutes) * time.Minute
}

// ErrorTTL returns how long failed builds stay cached before a retry is
// allowed.
func (c *Config) ErrorTTL() time.Duration {
	return time.Duration(c.Limits.ErrorTTLMinutes) * time.Minute
}

// intOr reads a positive integer key, falling back to def when the key is
// missing, malformed or non-positive.
func intOr(section *ini.Section, key string, def int) int {
	if !section.HasKey(key) {
		return def
	}
	v, err := section.Key(key).Int()
	if err != nil || v <= 0 {
		return def
	}
	return v
}
