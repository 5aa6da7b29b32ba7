package config

import (
	"fmt"
	"strings"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProvisioning()...)
	errors = append(errors, c.validateRuntime()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateProvisioning() []ValidationError {
	var errors []ValidationError

	if c.Provisioning.MaxAttemptsPerRole < 1 || c.Provisioning.MaxAttemptsPerRole > 10 {
		errors = append(errors, ValidationError{
			Path:    "provisioning.max_attempts_per_role",
			Message: fmt.Sprintf("must be between 1 and 10, got %d", c.Provisioning.MaxAttemptsPerRole),
		})
	}

	return errors
}

func (c *Config) validateRuntime() []ValidationError {
	var errors []ValidationError

	if c.Runtime.Endpoint == "" {
		errors = append(errors, ValidationError{
			Path:    "runtime.endpoint",
			Message: "must not be empty",
		})
	} else if !strings.HasPrefix(c.Runtime.Endpoint, "http://") && !strings.HasPrefix(c.Runtime.Endpoint, "https://") {
		errors = append(errors, ValidationError{
			Path:    "runtime.endpoint",
			Message: fmt.Sprintf("must be an http(s) URL, got '%s'", c.Runtime.Endpoint),
		})
	}

	if c.Runtime.PullTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Path:    "runtime.pull_timeout_seconds",
			Message: fmt.Sprintf("must be positive, got %d", c.Runtime.PullTimeoutSeconds),
		})
	}

	if c.Runtime.HealthRetries < 1 || c.Runtime.HealthRetries > 20 {
		errors = append(errors, ValidationError{
			Path:    "runtime.health_retries",
			Message: fmt.Sprintf("must be between 1 and 20, got %d", c.Runtime.HealthRetries),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, c.Logging.Level) {
		return nil
	}

	return []ValidationError{{
		Path:    "logging.level",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
	}}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
