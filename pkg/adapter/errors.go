package adapter

import (
	"errors"
	"fmt"

	"github.com/redbco/redb-persist/pkg/dbcapabilities"
)

// Standard adapter errors
var (
	// ErrOperationNotSupported is returned when an operation is not supported by the dialect
	ErrOperationNotSupported = errors.New("operation not supported by this database")

	// ErrInvalidConfiguration is returned when a connection configuration is invalid
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDialectNotFound is returned when no dialect is registered for an engine
	ErrDialectNotFound = errors.New("dialect not found")

	// ErrInvalidValue is returned when a value cannot be encoded or decoded for its kind
	ErrInvalidValue = errors.New("invalid value")
)

// DatabaseError wraps storage errors with the engine and the operation that
// failed, so callers see one consistent structure across engines.
type DatabaseError struct {
	DatabaseID dbcapabilities.DatabaseID
	Operation  string
	Cause      error
	Context    map[string]any
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if len(e.Context) > 0 {
		return fmt.Sprintf("[%s] %s: %v (context: %v)", e.DatabaseID, e.Operation, e.Cause, e.Context)
	}
	return fmt.Sprintf("[%s] %s: %v", e.DatabaseID, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a new DatabaseError.
func NewDatabaseError(id dbcapabilities.DatabaseID, operation string, cause error) *DatabaseError {
	return &DatabaseError{
		DatabaseID: id,
		Operation:  operation,
		Cause:      cause,
	}
}

// WithContext adds context to a DatabaseError.
func (e *DatabaseError) WithContext(key string, value any) *DatabaseError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WrapError wraps an error with database context.
// If the error is already a DatabaseError, it returns it as-is.
func WrapError(id dbcapabilities.DatabaseID, operation string, err error) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}

	return NewDatabaseError(id, operation, err)
}

// UnsupportedOperationError is returned when a dialect cannot render or run
// an operation.
type UnsupportedOperationError struct {
	DatabaseID dbcapabilities.DatabaseID
	Operation  string
	Reason     string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s does not support %s: %s", e.DatabaseID, e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s does not support %s", e.DatabaseID, e.Operation)
}

// Is checks if the error is ErrOperationNotSupported.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrOperationNotSupported
}

// NewUnsupportedOperationError creates a new UnsupportedOperationError.
func NewUnsupportedOperationError(id dbcapabilities.DatabaseID, operation, reason string) *UnsupportedOperationError {
	return &UnsupportedOperationError{
		DatabaseID: id,
		Operation:  operation,
		Reason:     reason,
	}
}

// ConfigurationError is returned when connection details cannot be turned
// into a driver DSN.
type ConfigurationError struct {
	DatabaseID dbcapabilities.DatabaseID
	Field      string
	Reason     string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for %s: field '%s': %s", e.DatabaseID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.DatabaseID, e.Reason)
}

// Is checks if the error is ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(id dbcapabilities.DatabaseID, field, reason string) *ConfigurationError {
	return &ConfigurationError{
		DatabaseID: id,
		Field:      field,
		Reason:     reason,
	}
}

// IsUnsupported checks if an error indicates an unsupported operation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrOperationNotSupported)
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
