package config

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidSettings matches every *ValidationError.
var ErrInvalidSettings = errors.New("invalid connection settings")

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named setting.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid connection settings: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSettings
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks that the settings needed to reach the remote store are
// present. It returns a *ValidationError naming every missing setting along
// with the environment variable and TOML key that provide it.
func (c Connection) Validate() error {
	var ve ValidationError

	host := strings.TrimSpace(c.Host)
	if host == "" {
		ve.Errors = append(ve.Errors, missing("host", "SGCACHE_HOST", "connection.host"))
	} else if u, err := url.Parse(host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "host", Message: "must be an http or https URL, got " + strconv.Quote(host)})
	}

	if strings.TrimSpace(c.APIScript) == "" {
		ve.Errors = append(ve.Errors, missing("api_script", "SGCACHE_API_SCRIPT", "connection.api_script"))
	}
	if strings.TrimSpace(c.APIKey) == "" {
		ve.Errors = append(ve.Errors, missing("api_key", "SGCACHE_API_KEY", "connection.api_key"))
	}

	if c.HTTPProxy != "" {
		if u, err := url.Parse(c.HTTPProxy); err != nil || u.Host == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: "http_proxy", Message: "must be a URL, got " + strconv.Quote(c.HTTPProxy)})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func missing(field, env, key string) FieldError {
	return FieldError{Field: field, Message: "is required (set " + env + " or " + key + " in the config file)"}
}
