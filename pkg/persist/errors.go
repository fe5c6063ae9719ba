package persist

import "errors"

var (
	// ErrNotFound is returned when no stored row matches a type and id.
	ErrNotFound = errors.New("object not found")

	// ErrNotStored is returned for operations on an object this kernel has
	// not saved or loaded.
	ErrNotStored = errors.New("object is not stored")

	// ErrTypeMismatch is returned when a property holds a value its
	// declared type does not accept.
	ErrTypeMismatch = errors.New("value does not match declared type")

	// ErrInconsistent is returned when stored rows or ownership edges
	// contradict each other. The enclosing operation is aborted.
	ErrInconsistent = errors.New("stored state is inconsistent")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("kernel is closed")
)
