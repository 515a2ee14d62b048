package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TestConfig is the full knob set for one load-test run. It is loaded once
// (flags > env > file > defaults), validated once, and treated as immutable
// afterwards.
type TestConfig struct {
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	ModelName string `mapstructure:"model_name" json:"model_name"`

	ConcurrentUsers       int  `mapstructure:"concurrent_users" json:"concurrent_users"`
	TestDurationSeconds   int  `mapstructure:"test_duration_seconds" json:"test_duration_seconds"`
	MaxContextTokens      int  `mapstructure:"max_context_tokens" json:"max_context_tokens"`
	RequestTimeoutSeconds int  `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`
	MaxRetries            int  `mapstructure:"max_retries" json:"max_retries"`
	VerifySSL             bool `mapstructure:"verify_ssl" json:"verify_ssl"`

	BackoffBaseSeconds float64 `mapstructure:"backoff_base_seconds" json:"backoff_base_seconds"`
	BackoffMaxSeconds  float64 `mapstructure:"backoff_max_seconds" json:"backoff_max_seconds"`

	ThinkTimeMinSeconds float64 `mapstructure:"think_time_min_seconds" json:"think_time_min_seconds"`
	ThinkTimeMaxSeconds float64 `mapstructure:"think_time_max_seconds" json:"think_time_max_seconds"`

	HealthCheckIntervalSeconds int `mapstructure:"health_check_interval_seconds" json:"health_check_interval_seconds"`
	HealthCheckTimeoutSeconds  int `mapstructure:"health_check_timeout_seconds" json:"health_check_timeout_seconds"`

	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`

	MCPRatio             float64 `mapstructure:"mcp_ratio" json:"mcp_ratio"`
	MaxRequestsPerSecond int     `mapstructure:"max_requests_per_second" json:"max_requests_per_second"`

	MaxResponseTokens int     `mapstructure:"max_response_tokens" json:"max_response_tokens"`
	Temperature       float64 `mapstructure:"temperature" json:"temperature"`

	HTTPEngine   string `mapstructure:"http_engine" json:"http_engine"`
	Seed         int64  `mapstructure:"seed" json:"seed"`
	ScenarioFile string `mapstructure:"scenario_file" json:"scenario_file"`
	MetricsAddr  string `mapstructure:"metrics_addr" json:"metrics_addr"`
	ReportPath   string `mapstructure:"report_path" json:"report_path"`
	HistoryDir   string `mapstructure:"history_dir" json:"history_dir"`
	LogLevel     string `mapstructure:"log_level" json:"log_level"`
}

// Default returns the baseline configuration before any file, env or flag
// overrides are applied.
func Default() TestConfig {
	return TestConfig{
		ConcurrentUsers:            60,
		TestDurationSeconds:        300,
		MaxContextTokens:           6000,
		RequestTimeoutSeconds:      60,
		MaxRetries:                 2,
		VerifySSL:                  false,
		BackoffBaseSeconds:         1.0,
		BackoffMaxSeconds:          30.0,
		ThinkTimeMinSeconds:        2.0,
		ThinkTimeMaxSeconds:        8.0,
		HealthCheckIntervalSeconds: 30,
		HealthCheckTimeoutSeconds:  30,
		ShutdownGraceSeconds:       30,
		MCPRatio:                   0.5,
		MaxResponseTokens:          500,
		Temperature:                0.7,
		HTTPEngine:                 "std",
		HistoryDir:                 DefaultHistoryDir(),
		LogLevel:                   "info",
	}
}

// DefaultHistoryDir is ~/.inferload, or empty (history disabled) when the
// home directory cannot be resolved.
func DefaultHistoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".inferload")
}

// SetDefaults registers every config key with its default value so that
// viper.Unmarshal fills unset keys correctly.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("model_name", d.ModelName)
	v.SetDefault("concurrent_users", d.ConcurrentUsers)
	v.SetDefault("test_duration_seconds", d.TestDurationSeconds)
	v.SetDefault("max_context_tokens", d.MaxContextTokens)
	v.SetDefault("request_timeout_seconds", d.RequestTimeoutSeconds)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("verify_ssl", d.VerifySSL)
	v.SetDefault("backoff_base_seconds", d.BackoffBaseSeconds)
	v.SetDefault("backoff_max_seconds", d.BackoffMaxSeconds)
	v.SetDefault("think_time_min_seconds", d.ThinkTimeMinSeconds)
	v.SetDefault("think_time_max_seconds", d.ThinkTimeMaxSeconds)
	v.SetDefault("health_check_interval_seconds", d.HealthCheckIntervalSeconds)
	v.SetDefault("health_check_timeout_seconds", d.HealthCheckTimeoutSeconds)
	v.SetDefault("shutdown_grace_seconds", d.ShutdownGraceSeconds)
	v.SetDefault("mcp_ratio", d.MCPRatio)
	v.SetDefault("max_requests_per_second", d.MaxRequestsPerSecond)
	v.SetDefault("max_response_tokens", d.MaxResponseTokens)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("http_engine", d.HTTPEngine)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("scenario_file", d.ScenarioFile)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("report_path", d.ReportPath)
	v.SetDefault("history_dir", d.HistoryDir)
	v.SetDefault("log_level", d.LogLevel)
}

// FromViper unmarshals and validates the merged configuration.
func FromViper(v *viper.Viper) (TestConfig, error) {
	var cfg TestConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, &Error{Field: "config", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Error reports a single invalid configuration field.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Validate checks every field and returns the first violation found.
func (c *TestConfig) Validate() error {
	if c.Endpoint == "" {
		return &Error{Field: "endpoint", Reason: "required"}
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Field: "endpoint", Reason: "must be an http(s) URL"}
	}
	if c.ModelName == "" {
		return &Error{Field: "model_name", Reason: "required"}
	}
	if c.ConcurrentUsers <= 0 {
		return &Error{Field: "concurrent_users", Reason: "must be > 0"}
	}
	if c.TestDurationSeconds <= 0 {
		return &Error{Field: "test_duration_seconds", Reason: "must be > 0"}
	}
	if c.MaxContextTokens <= 0 {
		return &Error{Field: "max_context_tokens", Reason: "must be > 0"}
	}
	if c.RequestTimeoutSeconds <= 0 {
		return &Error{Field: "request_timeout_seconds", Reason: "must be > 0"}
	}
	if c.MaxRetries < 0 {
		return &Error{Field: "max_retries", Reason: "must be >= 0"}
	}
	if c.BackoffBaseSeconds <= 0 {
		return &Error{Field: "backoff_base_seconds", Reason: "must be > 0"}
	}
	if c.BackoffMaxSeconds < c.BackoffBaseSeconds {
		return &Error{Field: "backoff_max_seconds", Reason: "must be >= backoff_base_seconds"}
	}
	if c.ThinkTimeMinSeconds < 0 {
		return &Error{Field: "think_time_min_seconds", Reason: "must be >= 0"}
	}
	if c.ThinkTimeMaxSeconds < c.ThinkTimeMinSeconds {
		return &Error{Field: "think_time_max_seconds", Reason: "must be >= think_time_min_seconds"}
	}
	if c.HealthCheckIntervalSeconds <= 0 {
		return &Error{Field: "health_check_interval_seconds", Reason: "must be > 0"}
	}
	if c.HealthCheckTimeoutSeconds <= 0 {
		return &Error{Field: "health_check_timeout_seconds", Reason: "must be > 0"}
	}
	if c.ShutdownGraceSeconds < 0 {
		return &Error{Field: "shutdown_grace_seconds", Reason: "must be >= 0"}
	}
	if c.MCPRatio < 0 || c.MCPRatio > 1 {
		return &Error{Field: "mcp_ratio", Reason: "must be in [0,1]"}
	}
	if c.MaxRequestsPerSecond < 0 {
		return &Error{Field: "max_requests_per_second", Reason: "must be >= 0"}
	}
	if c.MaxResponseTokens <= 0 {
		return &Error{Field: "max_response_tokens", Reason: "must be > 0"}
	}
	switch c.HTTPEngine {
	case "std", "fasthttp":
	default:
		return &Error{Field: "http_engine", Reason: `must be "std" or "fasthttp"`}
	}
	return nil
}

// ChatCompletionsURL is the request target for user traffic and probes.
func (c *TestConfig) ChatCompletionsURL() string {
	return strings.TrimRight(c.Endpoint, "/") + "/v1/chat/completions"
}

// Redacted returns a copy safe for reports and logs.
func (c TestConfig) Redacted() TestConfig {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}

// Duration helpers. The wire format keeps the original's second-based
// numeric fields; everything internal works in time.Duration.

func (c *TestConfig) Duration() time.Duration {
	return time.Duration(c.TestDurationSeconds) * time.Second
}

func (c *TestConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *TestConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds * float64(time.Second))
}

func (c *TestConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds * float64(time.Second))
}

func (c *TestConfig) ThinkTimeMin() time.Duration {
	return time.Duration(c.ThinkTimeMinSeconds * float64(time.Second))
}

func (c *TestConfig) ThinkTimeMax() time.Duration {
	return time.Duration(c.ThinkTimeMaxSeconds * float64(time.Second))
}

func (c *TestConfig) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}

func (c *TestConfig) HealthCheckTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutSeconds) * time.Second
}

func (c *TestConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}
