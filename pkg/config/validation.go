package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus the custom
// rules that cannot be expressed in tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

func validateCustomRules(cfg *Config) error {
	if cfg.Store.Type == "git" {
		if path, _ := cfg.Store.Git["path"].(string); path == "" {
			return fmt.Errorf("store.git.path: required when store.type is git")
		}
	}
	return nil
}

// formatValidationError turns validator errors into operator-readable
// messages.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, ferr := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (value: %v)",
			strings.ToLower(ferr.Namespace()), ferr.Tag(), ferr.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
