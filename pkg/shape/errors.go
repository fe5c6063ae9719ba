package shape

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShape is matched by every ShapeError
	ErrInvalidShape = errors.New("invalid shape")

	// ErrUnknownType is matched by every UnknownTypeError
	ErrUnknownType = errors.New("unknown type")

	// ErrDuplicateType is returned when a type name is registered twice
	ErrDuplicateType = errors.New("type already registered")
)

// ShapeError reports a type description that cannot be mapped: mismatched
// accessor types, disallowed names, or a broken inheritance declaration.
type ShapeError struct {
	Type     string
	Accessor string
	Reason   string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Accessor != "" {
		return fmt.Sprintf("invalid shape %s.%s: %s", e.Type, e.Accessor, e.Reason)
	}
	return fmt.Sprintf("invalid shape %s: %s", e.Type, e.Reason)
}

// Is checks if the error is ErrInvalidShape.
func (e *ShapeError) Is(target error) bool {
	return target == ErrInvalidShape
}

// NewShapeError creates a new ShapeError.
func NewShapeError(typeName, accessor, reason string) *ShapeError {
	return &ShapeError{Type: typeName, Accessor: accessor, Reason: reason}
}

// UnknownTypeError is returned when a type name, typically read back from a
// stored type tag, has no registered shape.
type UnknownTypeError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q: no shape registered", e.Name)
}

// Is checks if the error is ErrUnknownType.
func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType
}

// IsShapeError checks if an error is a shape error.
func IsShapeError(err error) bool {
	return errors.Is(err, ErrInvalidShape)
}

// IsUnknownType checks if an error reports an unregistered type.
func IsUnknownType(err error) bool {
	return errors.Is(err, ErrUnknownType)
}
