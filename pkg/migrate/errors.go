package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaPermission is matched by every SchemaPermissionError
	ErrSchemaPermission = errors.New("schema change not permitted")

	// ErrConflict is matched by every MigrationConflictError
	ErrConflict = errors.New("migration conflict")

	// ErrMigration is matched by every MigrationError
	ErrMigration = errors.New("migration failed")
)

// SchemaPermissionError is returned when a table has to be created or
// altered while the corresponding switch is off.
type SchemaPermissionError struct {
	Table  string
	Action string
}

// Error implements the error interface.
func (e *SchemaPermissionError) Error() string {
	return fmt.Sprintf("schema %s of %s is required but disabled", e.Action, e.Table)
}

// Is checks if the error is ErrSchemaPermission.
func (e *SchemaPermissionError) Is(target error) bool {
	return target == ErrSchemaPermission
}

// MigrationConflictError is returned when the stored schema cannot be
// reconciled with the current shape deterministically.
type MigrationConflictError struct {
	Table  string
	Reason string
}

// Error implements the error interface.
func (e *MigrationConflictError) Error() string {
	return fmt.Sprintf("cannot migrate %s: %s", e.Table, e.Reason)
}

// Is checks if the error is ErrConflict.
func (e *MigrationConflictError) Is(target error) bool {
	return target == ErrConflict
}

// MigrationError is returned when a step fails. Partial is set when earlier
// steps were already committed by the engine and could not be rolled back.
type MigrationError struct {
	Step    string
	Partial bool
	Cause   error
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.Partial {
		return fmt.Sprintf("migration step %q failed after earlier steps were committed: %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("migration step %q failed: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrMigration.
func (e *MigrationError) Is(target error) bool {
	return target == ErrMigration
}

// IsConflict checks if an error is a migration conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsPermission checks if an error reports a disabled schema change.
func IsPermission(err error) bool {
	return errors.Is(err, ErrSchemaPermission)
}
