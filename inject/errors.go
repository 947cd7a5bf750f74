package inject

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParent is returned when a position needs the anchor's parent and
	// the anchor is detached or is the document root.
	ErrNoParent = errors.New("inject: anchor has no parent")

	// ErrUnknownPosition is returned for relative values outside the known set.
	ErrUnknownPosition = errors.New("inject: unknown relative position")

	// ErrEmptyFragment is returned when fragment HTML yields no nodes.
	ErrEmptyFragment = errors.New("inject: empty fragment")
)

// ErrFragment is returned when a fragment builder rejects placement HTML.
type ErrFragment struct {
	Cause error
}

func (e *ErrFragment) Error() string {
	return fmt.Sprintf("inject: build fragment: %v", e.Cause)
}

func (e *ErrFragment) Unwrap() error { return e.Cause }

// ErrSelector is returned when a relative selector does not compile.
type ErrSelector struct {
	Selector string
	Cause    error
}

func (e *ErrSelector) Error() string {
	return fmt.Sprintf("inject: selector %q: %v", e.Selector, e.Cause)
}

func (e *ErrSelector) Unwrap() error { return e.Cause }
