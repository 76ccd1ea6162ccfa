package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ServerStartError generates suggestions for a server that failed to listen.
func ServerStartError(err error, port int) []ErrorSuggestion {
	var suggestions []ErrorSuggestion

	var le *LiveError
	if errors.As(err, &le) && le.Code == ErrCodePortInUse && !errors.Is(err, os.ErrPermission) {
		suggestions = append(suggestions,
			ErrorSuggestion{
				Title:       "Port already in use",
				Description: fmt.Sprintf("Port %d is already being used by another process", port),
				Command:     fmt.Sprintf("lsof -i :%d", port),
			},
			ErrorSuggestion{
				Title:       "Use a different port",
				Description: "Start the server on a different port",
				Command:     fmt.Sprintf("livemarkdown serve -p %d", alternatePort(port)),
			},
		)
	}

	if errors.Is(err, os.ErrPermission) && port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "livemarkdown serve -p 4000",
		})
	}

	return suggestions
}

func alternatePort(port int) int {
	if port+1 > 65535 {
		return 4000
	}
	return port + 1
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Validate configuration",
			Description: "Use the config validate command to list every issue",
			Command:     "livemarkdown config validate",
		},
	}

	if configPath != "" {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check configuration file",
			Description: "Verify the file exists and has valid YAML syntax",
			Command:     "cat " + configPath,
		})
	}

	if strings.Contains(configError, "decode") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix value types",
			Description: "Durations need a unit and ports must be numbers",
			Example:     "watch:\n       debounce: 300ms",
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

func (e *EnhancedError) Error() string {
	title := e.Title
	if e.OriginalError != nil {
		title += ": " + e.OriginalError.Error()
	}
	return FormatSuggestions(title, e.Suggestions)
}

func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
