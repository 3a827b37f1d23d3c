package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeAgent represents agent/LLM-related errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeTool represents tool execution errors
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeMCP represents tool-server lifecycle errors
	ErrorTypeMCP ErrorType = "mcp"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrType returns the error category. Promoted through embedding so wrapper
// types report their category without reimplementing it.
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Agent Errors

// ErrAgentNoResponse is returned when the model produces no extractable answer
var ErrAgentNoResponse = NewBaseError(ErrorTypeAgent, "no response from LLM", nil)

// ErrAgentLLMFailed is returned when an LLM request fails after retries
type ErrAgentLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewAgentLLMFailed(model string, attempts int, retryable bool, err error) *ErrAgentLLMFailed {
	return &ErrAgentLLMFailed{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// Tool Errors

// ErrToolNotFound is returned when the model requests a tool that was never discovered
type ErrToolNotFound struct {
	*BaseError
	ToolName string
}

func NewToolNotFound(toolName string) *ErrToolNotFound {
	return &ErrToolNotFound{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("tool not found: %s", toolName), nil),
		ToolName:  toolName,
	}
}

// ErrToolExecutionFailed is returned when a dispatched tool call fails
type ErrToolExecutionFailed struct {
	*BaseError
	ToolName string
}

func NewToolExecutionFailed(toolName string, err error) *ErrToolExecutionFailed {
	return &ErrToolExecutionFailed{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("tool execution failed: %s", toolName), err),
		ToolName:  toolName,
	}
}

// MCP Errors

// ErrServerUnavailable is returned when a tool server fails to launch or answer discovery
type ErrServerUnavailable struct {
	*BaseError
	Server string
}

func NewServerUnavailable(server string, err error) *ErrServerUnavailable {
	return &ErrServerUnavailable{
		BaseError: NewBaseError(ErrorTypeMCP, fmt.Sprintf("tool server unavailable: %s", server), err),
		Server:    server,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled mid-turn
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var typed interface{ ErrType() ErrorType }
	if errors.As(err, &typed) {
		return typed.ErrType() == errType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var llmErr *ErrAgentLLMFailed
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	// A tool server may come back on the next request
	if IsErrorType(err, ErrorTypeMCP) {
		return true
	}
	return false
}
