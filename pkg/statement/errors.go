package statement

import "errors"

var (
	// ErrUnknownProperty is returned when a clause names a property the
	// searched type does not have.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrIncompatibleType is returned when an example or subquery type is not
	// related to the searched type.
	ErrIncompatibleType = errors.New("incompatible type")

	// ErrInvalidClause is returned for clauses that cannot be compiled.
	ErrInvalidClause = errors.New("invalid clause")
)
