package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	applyServerDefaults(cfg)
	applySecurityDefaults(&cfg.Security)
	applyDirectoryDefaults(&cfg.Directory)
	applyEventsDefaults(&cfg.Events)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
}

func applySecurityDefaults(cfg *SecurityConfig) {
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = "georchestra-gateway"
	}
	if cfg.Token.Duration == 0 {
		cfg.Token.Duration = 8 * time.Hour
	}
}

func applyDirectoryDefaults(cfg *DirectoryConfig) {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.Backend == BackendSQL {
		cfg.SQL.ApplyDefaults()
	}
}

func applyEventsDefaults(cfg *EventsConfig) {
	if cfg.EnableRabbitmqEvents {
		cfg.RabbitMQ.ApplyDefaults()
	}
}

// GetDefaultConfig returns a configuration with all defaults applied,
// used when no config file exists.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
