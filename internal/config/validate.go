package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/proxy"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator returns the shared validator. Field names in errors follow
// the hcl tag, then the json tag.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"hcl", "json"} {
				name, _, _ := strings.Cut(f.Tag.Get(key), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
	return validate
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct runs tag validation on v and converts failures into
// ValidationErrors.
func ValidateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "hostname_port":
		return "must be host:port"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// ValidateProxy checks a complete proxy configuration, such as one submitted
// through the API.
func ValidateProxy(cfg proxy.Config) error {
	if err := ValidateStruct(cfg); err != nil {
		return err
	}
	if !cfg.EnableTCP && !cfg.EnableUDP {
		return ValidationErrors{{Field: "enable_tcp", Message: "at least one of tcp or udp must be enabled"}}
	}
	return nil
}

// Validate checks field constraints, the effective proxy configuration and
// every inline rule.
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return err
	}
	if err := ValidateProxy(c.ProxyConfig()); err != nil {
		return err
	}
	if _, err := c.DefaultAction(); err != nil {
		return fmt.Errorf("engine.default_action: %w", err)
	}
	if _, err := c.LoggingConfig(); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if seen[r.Name] {
			return fmt.Errorf("rule %q: duplicate name", r.Name)
		}
		seen[r.Name] = true
		if _, err := firewall.BuildRule(r.Record()); err != nil {
			return err
		}
	}
	return nil
}
