// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"algotrader/internal/models"
)

// Config is the complete configuration for one deployment.
type Config struct {
	System    SystemConfig     `yaml:"system"`
	Accounts  []models.Account `yaml:"accounts"`
	Timing    TimingConfig     `yaml:"timing"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
}

// SystemConfig contains deployment-level settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level"`
	DeployDir    string `yaml:"deploy_dir"`    // instrument caches, pnl database
	TradesDir    string `yaml:"trades_dir"`    // trade and strategy snapshots
	HolidaysFile string `yaml:"holidays_file"` // one YYYY-MM-DD per line
	PnLDatabase  string `yaml:"pnl_database"`  // sqlite file, empty disables the series
}

// TimingConfig contains the cadences of the reconciliation loops, in
// seconds unless noted.
type TimingConfig struct {
	TradeTrackInterval    int `yaml:"trade_track_interval"`
	StrategyMonitorOffset int `yaml:"strategy_monitor_offset"`
	OrderBookRefresh      int `yaml:"order_book_refresh"`
	BrokerRateLimit       int `yaml:"broker_rate_limit"` // requests per second
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

func (t TimingConfig) TrackInterval() time.Duration {
	return time.Duration(t.TradeTrackInterval) * time.Second
}

func (t TimingConfig) MonitorOffset() time.Duration {
	return time.Duration(t.StrategyMonitorOffset) * time.Second
}

func (t TimingConfig) OrderBookInterval() time.Duration {
	return time.Duration(t.OrderBookRefresh) * time.Second
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.DeployDir == "" {
		c.System.DeployDir = "deploy"
	}
	if c.System.TradesDir == "" {
		c.System.TradesDir = "trades"
	}
	if c.Timing.TradeTrackInterval == 0 {
		c.Timing.TradeTrackInterval = 5
	}
	if c.Timing.StrategyMonitorOffset == 0 {
		c.Timing.StrategyMonitorOffset = 3
	}
	if c.Timing.OrderBookRefresh == 0 {
		c.Timing.OrderBookRefresh = 30
	}
	if c.Timing.BrokerRateLimit == 0 {
		c.Timing.BrokerRateLimit = 10
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9090
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}.Error())
	}

	if len(c.Accounts) == 0 {
		errs = append(errs, ValidationError{
			Field:   "accounts",
			Message: "at least one account must be configured",
		}.Error())
	}
	seen := make(map[string]bool)
	for i, acct := range c.Accounts {
		field := fmt.Sprintf("accounts[%d]", i)
		if acct.ShortCode == "" {
			errs = append(errs, ValidationError{Field: field + ".short_code", Message: "short code is required"}.Error())
		}
		if seen[acct.ShortCode] {
			errs = append(errs, ValidationError{Field: field + ".short_code", Value: acct.ShortCode, Message: "duplicate short code"}.Error())
		}
		seen[acct.ShortCode] = true
		if acct.BrokerName == "" {
			errs = append(errs, ValidationError{Field: field + ".broker", Message: "broker name is required"}.Error())
		}
		if acct.ClientID == "" {
			errs = append(errs, ValidationError{Field: field + ".client_id", Message: "client id is required"}.Error())
		}
		if acct.Multiple < 0 {
			errs = append(errs, ValidationError{Field: field + ".multiple", Value: acct.Multiple, Message: "must not be negative"}.Error())
		}
	}

	if c.Timing.TradeTrackInterval < 1 || c.Timing.TradeTrackInterval > 300 {
		errs = append(errs, ValidationError{
			Field:   "timing.trade_track_interval",
			Value:   c.Timing.TradeTrackInterval,
			Message: "must be between 1 and 300 seconds",
		}.Error())
	}
	if c.Timing.StrategyMonitorOffset < 0 || c.Timing.StrategyMonitorOffset >= c.Timing.TradeTrackInterval {
		errs = append(errs, ValidationError{
			Field:   "timing.strategy_monitor_offset",
			Value:   c.Timing.StrategyMonitorOffset,
			Message: "must be smaller than trade_track_interval",
		}.Error())
	}
	if c.Timing.BrokerRateLimit < 1 || c.Timing.BrokerRateLimit > 100 {
		errs = append(errs, ValidationError{
			Field:   "timing.broker_rate_limit",
			Value:   c.Timing.BrokerRateLimit,
			Message: "must be between 1 and 100 requests per second",
		}.Error())
	}
	if c.Telemetry.MetricsPort < 1 || c.Telemetry.MetricsPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.metrics_port",
			Value:   c.Telemetry.MetricsPort,
			Message: "must be a valid port",
		}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
