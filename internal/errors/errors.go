// Package errors provides structured error handling for portstrom operations.
// It defines error codes and error types for tool invocation, output parsing,
// report rendering and configuration.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// External tool errors.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailed   ErrorCode = "TOOL_FAILED"
	CodeParseAnomaly ErrorCode = "PARSE_ANOMALY"
	CodeResolve      ErrorCode = "RESOLVE_FAILED"

	// Report errors.
	CodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	CodeOutputMissing     ErrorCode = "OUTPUT_MISSING"
	CodeFileCreate        ErrorCode = "FILE_CREATE"
	CodeEncode            ErrorCode = "ENCODE"
)

// ToolError represents a failed invocation of an external tool.
type ToolError struct {
	Code     ErrorCode
	Tool     string
	ExitCode int
	Stderr   string
	Cause    error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	switch e.Code {
	case CodeToolNotFound:
		return fmt.Sprintf("[%s] %s not found in PATH", e.Code, e.Tool)
	case CodeToolFailed:
		return fmt.Sprintf("[%s] %s exited with status %d", e.Code, e.Tool, e.ExitCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Tool, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Tool)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a tool error with the given code.
func NewToolError(code ErrorCode, tool string, cause error) *ToolError {
	return &ToolError{
		Code:  code,
		Tool:  tool,
		Cause: cause,
	}
}

// ErrToolNotFound creates an error for a tool binary that cannot be located.
func ErrToolNotFound(tool string, cause error) *ToolError {
	return NewToolError(CodeToolNotFound, tool, cause)
}

// ErrToolFailed creates an error for a tool that exited with a nonzero status.
func ErrToolFailed(tool string, exitCode int, stderr string) *ToolError {
	return &ToolError{
		Code:     CodeToolFailed,
		Tool:     tool,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

// ParseError describes a single line of tool output that did not match
// the expected grammar.
type ParseError struct {
	Tool   string
	Line   int
	Text   string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %s output line %d: %s: %q", CodeParseAnomaly, e.Tool, e.Line, e.Reason, e.Text)
}

// RenderError represents a failure to write a report.
type RenderError struct {
	Code   ErrorCode
	Path   string
	Format string
	Cause  error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	msg := fmt.Sprintf("[%s] cannot render report", e.Code)
	if e.Format != "" {
		msg += " as " + e.Format
	}
	if e.Path != "" {
		msg += " to " + e.Path
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// ErrUnsupportedFormat creates an error for an output format that has no renderer.
func ErrUnsupportedFormat(path, format string) *RenderError {
	return &RenderError{Code: CodeUnsupportedFormat, Path: path, Format: format}
}

// WrapRenderError wraps an I/O or encoding failure during rendering.
func WrapRenderError(code ErrorCode, path, format string, err error) *RenderError {
	return &RenderError{Code: code, Path: path, Format: format, Cause: err}
}

// ResolveError represents a failed hostname lookup.
type ResolveError struct {
	Target string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("[%s] cannot resolve %s", CodeResolve, e.Target)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// NewResolveError creates a resolution error for target.
func NewResolveError(target, reason string, cause error) *ResolveError {
	return &ResolveError{Target: target, Reason: reason, Cause: cause}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// GetCode extracts the error code from an error chain if it carries one.
func GetCode(err error) ErrorCode {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Code
	}
	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Code
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr.Code
	}
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return CodeResolve
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return CodeParseAnomaly
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsFatal reports whether an error indicates an environment problem that a
// strict run should abort on rather than record.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeToolNotFound, CodeConfiguration, CodeValidation,
		CodeUnsupportedFormat, CodeOutputMissing, CodeFileCreate, CodeEncode:
		return true
	default:
		return false
	}
}
