package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeInvalidGraph   = "INVALID_GRAPH"
	ErrCodeNodeNotFound   = "NODE_NOT_FOUND"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeIterationLimit = "ITERATION_LIMIT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeStore          = "STORE_ERROR"
)

// GantryError is the structured error type for all gantry operations.
type GantryError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Node    string         `json:"node,omitempty"`
	Cause   error          `json:"-"`
}

func (e *GantryError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GantryError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GantryError.
func NewError(code, message string) *GantryError {
	return &GantryError{Code: code, Message: message}
}

// NewErrorf creates a new GantryError with a formatted message.
func NewErrorf(code, format string, args ...any) *GantryError {
	return &GantryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node name to the error.
func (e *GantryError) WithNode(node string) *GantryError {
	e.Node = node
	return e
}

// WithCause attaches an underlying cause.
func (e *GantryError) WithCause(err error) *GantryError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GantryError) WithDetails(details map[string]any) *GantryError {
	e.Details = details
	return e
}
