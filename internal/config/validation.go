package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/alicanerdogan/livemarkdown/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Error joins every error message, so a result can be used as an error cause.
func (vr *ValidationResult) Error() string {
	msgs := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(msgs, "; ")
}

// String returns a formatted report of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// Validate checks every section of config.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&config.Server, result)
	validateWatch(&config.Watch, result)
	validateEvents(&config.Events, result)
	validateSession(&config.Session, result)
	validateLog(&config.Log, result)

	return result
}

func validateServer(config *ServerConfig, result *ValidationResult) {
	if config.Port <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     "Port number must be greater than 0",
			Suggestions: []string{"Pass -p/--port or set LIVEMARKDOWN_SERVER_PORT"},
		})
	} else if config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "Port must be a valid number between 1 and 65535",
		})
	} else if config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     fmt.Sprintf("port %d is privileged", config.Port),
			Suggestions: []string{"Use a port between 1024-65535 for non-privileged access"},
		})
	}

	if err := validateHostname(config.Host); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.host",
			Value:   config.Host,
			Message: err.Error(),
		})
	} else if config.Host != "localhost" && !isLoopback(config.Host) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "server.host",
			Value:       config.Host,
			Message:     "server is reachable from other machines",
			Suggestions: []string{"Bind to 127.0.0.1 unless remote previews are intended"},
		})
	}
}

func validateWatch(config *WatchConfig, result *ValidationResult) {
	if config.Debounce <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.debounce",
			Value:   config.Debounce,
			Message: "debounce must be positive",
		})
	}
}

func validateEvents(config *EventsConfig, result *ValidationResult) {
	if config.BufferSize <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "events.buffer_size",
			Value:   config.BufferSize,
			Message: "buffer size must be positive",
		})
	}
}

func validateSession(config *SessionConfig, result *ValidationResult) {
	if config.KeepAlive <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "session.keep_alive",
			Value:   config.KeepAlive,
			Message: "keep-alive interval must be positive",
		})
	}
	if config.Retry < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "session.retry",
			Value:   config.Retry,
			Message: "retry hint must not be negative",
		})
	}
}

func validateLog(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.level",
			Value:       config.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use one of debug, info, warn, error"},
		})
	}
	if config.Format != "text" && config.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.format",
			Value:   config.Format,
			Message: fmt.Sprintf("unknown log format %q", config.Format),
		})
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
