// pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the signaling client
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Log      LogConfig     `yaml:"log"`
	SIP      SIPConfig     `yaml:"sip"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// LogConfig represents log file rotation settings
type LogConfig struct {
	Development bool   `yaml:"development"`
	FilePath    string `yaml:"file_path"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// SIPConfig represents the trunk proxy connection parameters. Loaded once,
// never mutated afterwards.
type SIPConfig struct {
	ProxyHost          string               `yaml:"proxy_host"`
	ProxyPort          int                  `yaml:"proxy_port"`
	LocalPort          int                  `yaml:"local_port"`
	Username           string               `yaml:"username"`
	Password           string               `yaml:"password"`
	Domain             string               `yaml:"domain"`
	DisplayName        string               `yaml:"display_name"`
	UserAgent          string               `yaml:"user_agent"`
	SkipRegister       bool                 `yaml:"skip_register"`
	SignalingTimeoutMS int                  `yaml:"signaling_timeout_ms"`
	ProbeTimeoutMS     int                  `yaml:"probe_timeout_ms"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold"`
	ResetSeconds     int  `yaml:"reset_seconds"`
	HalfOpenMax      int  `yaml:"half_open_max"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BindAddr string `yaml:"bind_addr"`
}

// ValidationError lists required fields missing from the configuration.
// Fatal at startup; the client never starts with incomplete credentials.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config missing required fields: %s", strings.Join(e.Missing, ", "))
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.SIP.ProxyPort <= 0 {
		c.SIP.ProxyPort = 5060
	}

	if c.SIP.LocalPort <= 0 {
		c.SIP.LocalPort = 5062
	}

	if c.SIP.Domain == "" {
		c.SIP.Domain = c.SIP.ProxyHost
	}

	if c.SIP.UserAgent == "" {
		c.SIP.UserAgent = "sespcl/1.0"
	}

	if c.SIP.SignalingTimeoutMS <= 0 {
		c.SIP.SignalingTimeoutMS = 30000 // 30 seconds
	}

	if c.SIP.ProbeTimeoutMS <= 0 {
		c.SIP.ProbeTimeoutMS = 5000 // 5 seconds
	}

	if c.Metrics.BindAddr == "" {
		c.Metrics.BindAddr = ":9090"
	}
}

// Validate checks that all required connection parameters are present.
func (c *Config) Validate() error {
	var missing []string
	if c.SIP.ProxyHost == "" {
		missing = append(missing, "sip.proxy_host")
	}
	if c.SIP.Username == "" {
		missing = append(missing, "sip.username")
	}
	if c.SIP.Password == "" {
		missing = append(missing, "sip.password")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// SignalingTimeout returns the SIP exchange window as a duration.
func (c *SIPConfig) SignalingTimeout() time.Duration {
	return time.Duration(c.SignalingTimeoutMS) * time.Millisecond
}

// ProbeTimeout returns the reachability probe window as a duration.
func (c *SIPConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// ProxyAddr returns the host:port of the trunk proxy.
func (c *SIPConfig) ProxyAddr() string {
	return fmt.Sprintf("%s:%d", c.ProxyHost, c.ProxyPort)
}
