package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/validation"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBackendURL = "http://localhost:8000"
	DefaultContainer  = "reports"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64

	BackendURL     string
	BackendTimeout time.Duration

	SessionTTL  time.Duration
	MaxSessions int

	UploadRate  float64
	UploadBurst int

	LogLevel string

	AzureAccount    string
	AzureKey        string
	ReportContainer string
}

// fileConfig mirrors Config for the optional YAML overlay.
// Durations are strings in time.ParseDuration syntax.
type fileConfig struct {
	Host               string  `yaml:"host"`
	Port               string  `yaml:"port"`
	RequestTimeout     string  `yaml:"request_timeout"`
	MaxRequestBodySize int64   `yaml:"max_request_body_size"`
	BackendURL         string  `yaml:"backend_url"`
	BackendTimeout     string  `yaml:"backend_timeout"`
	SessionTTL         string  `yaml:"session_ttl"`
	MaxSessions        int     `yaml:"max_sessions"`
	UploadRate         float64 `yaml:"upload_rate"`
	UploadBurst        int     `yaml:"upload_burst"`
	LogLevel           string  `yaml:"log_level"`
	AzureAccount       string  `yaml:"azure_account"`
	AzureKey           string  `yaml:"azure_key"`
	ReportContainer    string  `yaml:"report_container"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// ArchiveEnabled reports whether Azure credentials were supplied
func (c *Config) ArchiveEnabled() bool {
	return c.AzureAccount != "" && c.AzureKey != ""
}

// Default returns the built-in configuration before any overlay
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		RequestTimeout:     30 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		BackendURL:         DefaultBackendURL,
		BackendTimeout:     60 * time.Second,
		SessionTTL:         30 * time.Minute,
		MaxSessions:        100,
		UploadRate:         2,
		UploadBurst:        5,
		LogLevel:           "info",
		ReportContainer:    DefaultContainer,
	}
}

// LoadFromEnv builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any), and finally the environment.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.BackendURL = strings.TrimRight(getEnvOrDefault("BACKEND_URL", cfg.BackendURL), "/")
	cfg.BackendTimeout = parseDurationOrDefault("BACKEND_TIMEOUT", cfg.BackendTimeout)
	cfg.SessionTTL = parseDurationOrDefault("SESSION_TTL", cfg.SessionTTL)
	cfg.MaxSessions = int(parseIntOrDefault("MAX_SESSIONS", int64(cfg.MaxSessions)))
	cfg.UploadRate = parseFloatOrDefault("UPLOAD_RATE", cfg.UploadRate)
	cfg.UploadBurst = int(parseIntOrDefault("UPLOAD_BURST", int64(cfg.UploadBurst)))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.AzureAccount = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.AzureAccount)
	cfg.AzureKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.AzureKey)
	cfg.ReportContainer = getEnvOrDefault("REPORT_CONTAINER", cfg.ReportContainer)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the backend URL
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.BackendTimeout <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, backend=%s, session=%s)",
			c.RequestTimeout, c.BackendTimeout, c.SessionTTL)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be > 0 (got %d)", c.MaxSessions)
	}
	if c.UploadRate <= 0 || c.UploadBurst <= 0 {
		return fmt.Errorf("upload limiter must be > 0 (got rate=%v, burst=%d)", c.UploadRate, c.UploadBurst)
	}
	if err := validation.NewURLValidator().ValidateBaseURL(c.BackendURL); err != nil {
		return fmt.Errorf("invalid BACKEND_URL %q: %w", c.BackendURL, err)
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Host, fc.Host)
	setString(&c.Port, fc.Port)
	setString(&c.BackendURL, fc.BackendURL)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.AzureAccount, fc.AzureAccount)
	setString(&c.AzureKey, fc.AzureKey)
	setString(&c.ReportContainer, fc.ReportContainer)
	if fc.MaxRequestBodySize > 0 {
		c.MaxRequestBodySize = fc.MaxRequestBodySize
	}
	if fc.MaxSessions > 0 {
		c.MaxSessions = fc.MaxSessions
	}
	if fc.UploadRate > 0 {
		c.UploadRate = fc.UploadRate
	}
	if fc.UploadBurst > 0 {
		c.UploadBurst = fc.UploadBurst
	}

	durations := []struct {
		raw    string
		target *time.Duration
		key    string
	}{
		{fc.RequestTimeout, &c.RequestTimeout, "request_timeout"},
		{fc.BackendTimeout, &c.BackendTimeout, "backend_timeout"},
		{fc.SessionTTL, &c.SessionTTL, "session_ttl"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("config file %s: invalid %s: %w", path, d.key, err)
		}
		*d.target = parsed
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
