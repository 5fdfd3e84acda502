package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigValidationError describes one invalid setting. Field is the
// environment variable name.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every invalid setting found in one pass.
type ValidationErrors []ConfigValidationError

func (errs ValidationErrors) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n", len(errs))
	for i, err := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg and returns ValidationErrors listing every problem.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ConfigValidationError{
			Field:   envName(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

// envName turns a validator namespace like "Config.db.driver" into the
// environment variable that sets it.
func envName(namespace string) string {
	_, key, found := strings.Cut(namespace, ".")
	if !found {
		key = namespace
	}
	if names, ok := envBindings[key]; ok {
		return names[0]
	}
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "required setting not set"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got: %v)", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return "must be positive"
	case "gte":
		return "must not be negative"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
