// Package config provides configuration management for the Evo Trader service.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateCrossField(cfg *Config) error {
	if cfg.Evolution.BatchSize > cfg.DataProvider.MaxRequestsPerCycle {
		return fmt.Errorf("evolution batch_size (%d) exceeds data provider max_requests_per_cycle (%d)",
			cfg.Evolution.BatchSize, cfg.DataProvider.MaxRequestsPerCycle)
	}
	if cfg.Backtest.WalkForwardStepDays > cfg.Backtest.WalkForwardOutDays {
		return fmt.Errorf("walk-forward step (%d days) must not exceed out-of-sample window (%d days)",
			cfg.Backtest.WalkForwardStepDays, cfg.Backtest.WalkForwardOutDays)
	}
	if cfg.Memory.Enabled && cfg.Memory.BaseURL == "" {
		return fmt.Errorf("memory service enabled but base_url is empty")
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, fmt.Sprintf("%s failed on %q", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(messages, "; "))
}
