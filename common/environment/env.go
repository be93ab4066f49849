// Package environment provides helpers for layering environment variables on
// top of configuration loaded from files.
//
// The Override* helpers only touch the destination when the variable is set to
// a non-empty value, so a value loaded from YAML survives unless the operator
// explicitly replaces it. Malformed numbers and durations are reported as
// errors.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StringOr returns the value of the named environment variable, or defaultValue
// if the variable is unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// OverrideString replaces *dst with the variable's value when it is set.
func OverrideString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// OverrideBool replaces *dst with the parsed variable. Recognized values are
// those of strconv.ParseBool.
func OverrideBool(dst *bool, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("environment variable %s: %w", name, err)
	}
	*dst = b
	return nil
}

// OverrideInt replaces *dst with the variable parsed as a decimal integer.
func OverrideInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("environment variable %s: %w", name, err)
	}
	*dst = n
	return nil
}

// OverrideDuration replaces *dst with the variable parsed as a time.Duration
// (e.g. "30s", "5m").
func OverrideDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("environment variable %s: %w", name, err)
	}
	*dst = d
	return nil
}

// OverrideStringSlice replaces *dst with the variable split on commas. Elements
// are trimmed and empty elements dropped; a variable that contains only
// separators leaves *dst untouched.
func OverrideStringSlice(dst *[]string, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) > 0 {
		*dst = result
	}
}
