// Package errors defines the structured error taxonomy shared by livemarkdown.
//
// Only NotFound crosses the core's public boundary as a structured result;
// watch, read and render failures are absorbed where they occur and are
// represented here so they can be logged with a consistent shape.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeDocumentNotFound = "ERR_DOCUMENT_NOT_FOUND"
	ErrCodeFileRead         = "ERR_FILE_READ"
	ErrCodeRender           = "ERR_RENDER"
	ErrCodeWatchAttach      = "ERR_WATCH_ATTACH"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodePortInUse        = "ERR_PORT_IN_USE"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// ExitCodePortInUse is the process exit status used when the listen address
// is already taken.
const ExitCodePortInUse = 30

// ErrDocumentNotFound is the sentinel matched by every NotFound error, so
// callers can use errors.Is without caring which document was missing.
var ErrDocumentNotFound = &LiveError{
	Type:    ErrorTypeNotFound,
	Code:    ErrCodeDocumentNotFound,
	Message: "document not found",
}

// LiveError is a structured error type with context.
type LiveError struct {
	Type       ErrorType
	Code       string
	Message    string
	Cause      error
	Context    map[string]interface{}
	DocumentID string
	FilePath   string
}

// Error implements the error interface.
func (e *LiveError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.DocumentID != "" {
		parts = append(parts, "document:"+e.DocumentID)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *LiveError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *LiveError) Is(target error) bool {
	var t *LiveError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *LiveError) WithContext(key string, value interface{}) *LiveError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath adds the filesystem path the error concerns.
func (e *LiveError) WithPath(path string) *LiveError {
	e.FilePath = path

	return e
}

// NewNotFoundError creates a NotFound error for a document id.
func NewNotFoundError(documentID string) *LiveError {
	return &LiveError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeDocumentNotFound,
		Message:    "document not found",
		DocumentID: documentID,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *LiveError {
	return &LiveError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *LiveError {
	return &LiveError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *LiveError {
	return &LiveError{
		Type:    ErrorTypeNetwork,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *LiveError {
	return &LiveError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *LiveError {
	return &LiveError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsNotFound checks if an error reports an unknown document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsType checks if an error carries the given type.
func IsType(err error, errorType ErrorType) bool {
	var le *LiveError
	if errors.As(err, &le) {
		return le.Type == errorType
	}

	return false
}

// ExitCode maps an error returned by a command onto a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var le *LiveError
	if errors.As(err, &le) && le.Code == ErrCodePortInUse {
		return ExitCodePortInUse
	}

	return 1
}
