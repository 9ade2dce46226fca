package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration loading and validation.
var (
	// ErrConfigNotFound indicates the configuration file doesn't exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates the configuration file contains invalid YAML.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates the configuration failed validation.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrAgentNotFound indicates a requested agent is not registered.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrWorkflowNotFound indicates a requested workflow is not registered.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrMissingRequiredField indicates a required configuration field is absent.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a configuration field has an invalid value.
	ErrInvalidValue = errors.New("invalid value")
)

// ValidationError provides detailed context about a validation failure.
type ValidationError struct {
	Component string // "agent", "workflow", "queue", "hitl", "retention"
	ID        string // identifier of the failing item (agent name, workflow id)
	Field     string // field that failed validation
	Err       error  // underlying error
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: field '%s': %v", e.Component, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError with the given context.
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{
		Component: component,
		ID:        id,
		Field:     field,
		Err:       err,
	}
}

// LoadError wraps errors that occur during configuration file loading.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
