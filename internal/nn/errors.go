package nn

import "fmt"

// ConfigError reports an invalid module configuration, such as a
// non-positive dimension or a head count that does not divide the model
// dimension.
type ConfigError struct {
	Module string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Module, e.Reason)
}

// NewConfigError creates a ConfigError with a formatted reason.
func NewConfigError(module, format string, args ...any) *ConfigError {
	return &ConfigError{Module: module, Reason: fmt.Sprintf(format, args...)}
}

// ShapeError reports an input tensor whose shape does not match what a
// module was configured for.
type ShapeError struct {
	Module string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: %s", e.Module, e.Reason)
}

// NewShapeError creates a ShapeError with a formatted reason.
func NewShapeError(module, format string, args ...any) *ShapeError {
	return &ShapeError{Module: module, Reason: fmt.Sprintf(format, args...)}
}
