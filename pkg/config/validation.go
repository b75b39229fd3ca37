package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors. Struct tags handle the
// simple constraints; the per-backend requirements are checked explicitly
// because they only apply to the selected backend.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			return fmt.Errorf("invalid configuration: %s", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateDirectory(&cfg.Directory); err != nil {
		return err
	}
	return validateEvents(&cfg.Events)
}

func validateDirectory(cfg *DirectoryConfig) error {
	switch cfg.Backend {
	case BackendMemory:
		return nil
	case BackendLDAP:
		var missing []string
		if cfg.LDAP.URL == "" {
			missing = append(missing, "directory.ldap.url")
		}
		if cfg.LDAP.BindDN == "" {
			missing = append(missing, "directory.ldap.bind_dn")
		}
		if cfg.LDAP.Password == "" {
			missing = append(missing, "directory.ldap.password")
		}
		if cfg.LDAP.BaseDN == "" {
			missing = append(missing, "directory.ldap.base_dn")
		}
		if len(missing) > 0 {
			return fmt.Errorf("ldap directory backend requires: %s", strings.Join(missing, ", "))
		}
		return nil
	case BackendSQL:
		return cfg.SQL.Validate()
	default:
		return fmt.Errorf("unsupported directory backend: %s", cfg.Backend)
	}
}

func validateEvents(cfg *EventsConfig) error {
	if cfg.EnableRabbitmqEvents && cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("events.rabbitmq.url is required when rabbitmq events are enabled")
	}
	return nil
}

// formatValidationErrors renders validator errors as a readable list of
// offending fields.
func formatValidationErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
