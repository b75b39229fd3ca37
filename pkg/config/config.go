// Package config loads and validates the gateway configuration from file,
// environment, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/emmdurin/georchestra-gateway/pkg/directory/ldap"
	"github.com/emmdurin/georchestra-gateway/pkg/directory/sql"
	"github.com/emmdurin/georchestra-gateway/pkg/events/rabbitmq"
	"github.com/emmdurin/georchestra-gateway/pkg/gateway"
)

// Config represents the gateway configuration.
//
// It captures the static aspects of a deployment:
//   - Logging configuration
//   - HTTP server settings (port, timeouts, backend)
//   - Security settings (pre-authentication, session tokens)
//   - Directory backend (memory, LDAP, or SQL)
//   - Event publishing (RabbitMQ)
//   - Metrics
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GATEWAY_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains the gateway HTTP server configuration
	Server gateway.ServerConfig `mapstructure:"server" yaml:"server"`

	// Security contains identity-resolution settings
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Directory selects and configures the user directory backend
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`

	// Events configures account-created event publishing
	Events EventsConfig `mapstructure:"events" yaml:"events"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SecurityConfig contains identity-resolution settings.
type SecurityConfig struct {
	// Preauth configures the trusted-proxy pre-authentication path
	Preauth PreauthConfig `mapstructure:"preauth" yaml:"preauth"`

	// Token configures gateway session token validation
	Token TokenConfig `mapstructure:"token" yaml:"token"`
}

// PreauthConfig configures the trusted-proxy pre-authentication path.
type PreauthConfig struct {
	// Enabled trusts the sec-georchestra-preauthenticated header set.
	// Only enable behind a proxy that strips these headers from clients.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// CreateNonExistingUsers provisions directory accounts for
	// pre-authenticated users that have none yet.
	// Default: true when preauth is enabled
	CreateNonExistingUsers *bool `mapstructure:"create_non_existing_users" yaml:"create_non_existing_users"`
}

// CreatesUsers reports whether account auto-creation is active.
func (c *PreauthConfig) CreatesUsers() bool {
	if c.CreateNonExistingUsers == nil {
		return c.Enabled
	}
	return *c.CreateNonExistingUsers
}

// TokenConfig configures gateway session tokens. Token authentication is
// active only when a secret is set.
type TokenConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string `mapstructure:"secret" validate:"omitempty,min=32" yaml:"secret,omitempty"`

	// Issuer is the token issuer claim.
	// Default: "georchestra-gateway"
	Issuer string `mapstructure:"issuer" yaml:"issuer,omitempty"`

	// Duration is the token lifetime.
	// Default: 8h
	Duration time.Duration `mapstructure:"duration" yaml:"duration,omitempty"`
}

// DirectoryBackend selects the user directory implementation.
type DirectoryBackend string

const (
	// BackendMemory keeps accounts in process memory. Useful for tests and
	// demos; nothing survives a restart.
	BackendMemory DirectoryBackend = "memory"

	// BackendLDAP talks to an OpenLDAP tree laid out the geOrchestra way.
	BackendLDAP DirectoryBackend = "ldap"

	// BackendSQL stores accounts in SQLite or PostgreSQL.
	BackendSQL DirectoryBackend = "sql"
)

// DirectoryConfig selects and configures the user directory backend.
type DirectoryConfig struct {
	// Backend is the directory implementation to use.
	// Valid values: memory, ldap, sql
	// Default: memory
	Backend DirectoryBackend `mapstructure:"backend" validate:"omitempty,oneof=memory ldap sql" yaml:"backend"`

	// LDAP contains LDAP backend configuration, used when Backend is "ldap".
	LDAP ldap.Config `mapstructure:"ldap" yaml:"ldap,omitempty"`

	// SQL contains SQL backend configuration, used when Backend is "sql".
	SQL sql.Config `mapstructure:"sql" yaml:"sql,omitempty"`
}

// EventsConfig configures account-created event publishing.
type EventsConfig struct {
	// EnableRabbitmqEvents publishes account-created events to RabbitMQ.
	// When false, events are only logged.
	EnableRabbitmqEvents bool `mapstructure:"enable_rabbitmq_events" yaml:"enable_rabbitmq_events"`

	// RabbitMQ contains broker configuration, used when publishing is enabled.
	RabbitMQ rabbitmq.Config `mapstructure:"rabbitmq" yaml:"rabbitmq,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics endpoint
	// are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GATEWAY_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  gateway config init\n\n"+
				"Or specify a custom config file:\n"+
				"  gateway <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  gateway config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry the token secret and directory credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GATEWAY_ prefix and underscores.
	// Example: GATEWAY_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "georchestra-gateway")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "georchestra-gateway")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// config init command).
func GetConfigDir() string {
	return getConfigDir()
}
