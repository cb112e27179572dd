package contract

import (
	"errors"
	"fmt"
)

// ConfigError marks a request that is wrong by construction: malformed
// descriptor, chain mismatch, bad options. It fails fast and is never
// retried.
type ConfigError struct {
	msg string
}

// NewConfigError creates a ConfigError
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return e.msg
}

// IsConfigError reports whether err is (or wraps) a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// CallError is a per-call failure held as data inside a BatchResult.
// It is only surfaced as a batch-level error when partial failure is
// not tolerated.
type CallError struct {
	Index   int
	Method  string
	Code    int
	Message string
}

// Error implements the error interface
func (e *CallError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("call %d (%s) failed: %s (code %d)", e.Index, e.Method, e.Message, e.Code)
	}
	return fmt.Sprintf("call %d (%s) failed: %s", e.Index, e.Method, e.Message)
}
