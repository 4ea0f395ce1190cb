package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers gateway-specific validation rules.
// Must be called before validating GatewayConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("tool_pattern", validateToolPattern); err != nil {
		return fmt.Errorf("failed to register tool_pattern validator: %w", err)
	}
	return nil
}

// validateToolPattern rejects the two pattern shapes spec.md's
// configuration table explicitly disallows: a literal "?" and any "**".
func validateToolPattern(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return p != "" && !strings.Contains(p, "?") && !strings.Contains(p, "**")
}

// Validate validates the GatewayConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with
// actionable error messages.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateToolPatterns(); err != nil {
		return err
	}
	if err := c.validateUpstreamUniqueness(); err != nil {
		return err
	}

	return nil
}

// validateToolPatterns rejects "?" and "**" in every configured pattern,
// including the ones nested under PolicyRules and rate-limit overrides
// (not reachable from the top-level dive tags).
func (c *GatewayConfig) validateToolPatterns() error {
	check := func(field, pattern string) error {
		if strings.Contains(pattern, "?") || strings.Contains(pattern, "**") {
			return fmt.Errorf("%s: pattern %q may not contain '?' or '**'", field, pattern)
		}
		return nil
	}
	for i, r := range c.PolicyRules {
		if err := check(fmt.Sprintf("policy_rules[%d].pattern", i), r.Pattern); err != nil {
			return err
		}
	}
	for i, o := range c.RateLimit.Overrides {
		if err := check(fmt.Sprintf("rate_limit.overrides[%d].pattern", i), o.Pattern); err != nil {
			return err
		}
	}
	return nil
}

// validateUpstreamUniqueness rejects duplicate upstream names or
// namespace prefixes in the static configuration. Namespace collisions
// introduced later by discovery providers are a runtime concern handled
// by the Upstream Registry (first-in-order wins, per spec.md §8 scenario 5),
// not a config-load-time error.
func (c *GatewayConfig) validateUpstreamUniqueness() error {
	names := make(map[string]struct{}, len(c.Upstreams))
	prefixes := make(map[string]struct{}, len(c.Upstreams))
	for _, u := range c.Upstreams {
		if _, ok := names[u.Name]; ok {
			return fmt.Errorf("upstreams: duplicate name %q", u.Name)
		}
		names[u.Name] = struct{}{}

		if u.Enabled != nil && !*u.Enabled {
			continue
		}
		if _, ok := prefixes[u.NamespacePrefix]; ok {
			return fmt.Errorf("upstreams: duplicate namespace_prefix %q", u.NamespacePrefix)
		}
		prefixes[u.NamespacePrefix] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
