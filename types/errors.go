package types

import "fmt"

// Error codes returned by graph mutations and registry edits. Clients parse the
// "<CODE>: <detail>" prefix to pick a user-facing message template, falling back
// to the raw error text for unknown prefixes.
const (
	CodeAccessDenied           = "ACCESS_DENIED"
	CodeInvalidType            = "INVALID_TYPE"
	CodeSchemaValidationFailed = "SCHEMA_VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeNotImplemented         = "NOT_IMPLEMENTED"
	CodeInvalidRegistry        = "INVALID_REGISTRY"
	CodeRegistryLocked         = "REGISTRY_LOCKED"
	CodeLockFailedUnknownTypes = "LOCK_FAILED_UNKNOWN_TYPES"
)

// GraphError provides structured error information for mutation and registry
// failures. It is returned as a value, never thrown past the tool-execution
// boundary, so a failed tool call becomes a normal tool result the language
// model can react to.
type GraphError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewGraphError creates a new structured graph error.
func NewGraphError(code string, message string, details map[string]any) *GraphError {
	return &GraphError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// GraphErrorf creates a structured graph error with a formatted message.
func GraphErrorf(code string, format string, args ...any) *GraphError {
	return &GraphError{Code: code, Message: fmt.Sprintf(format, args...)}
}
