package anchor

import "errors"

var (
	// ErrNotAttached indicates an operation on a key that is not attached.
	ErrNotAttached = errors.New("anchor key not attached")

	// ErrAlreadyAttached indicates a second attach of the same key without an
	// intervening detach.
	ErrAlreadyAttached = errors.New("anchor key already attached")

	// ErrMissingParameter indicates a required static parameter was never supplied.
	ErrMissingParameter = errors.New("missing computation parameter")

	// ErrNoAnchorage indicates a position was requested while no anchorage is bound.
	ErrNoAnchorage = errors.New("no anchorage bound")

	// ErrInvalidKey indicates an empty key or a key that does not match the
	// anchored element it is attached with.
	ErrInvalidKey = errors.New("invalid anchor key")

	// ErrParameterKind indicates a static parameter used where a dynamic one is
	// expected, or the reverse.
	ErrParameterKind = errors.New("parameter kind mismatch")

	// ErrParameterType indicates a parameter stored under a type id holds a
	// different Go value type than requested.
	ErrParameterType = errors.New("parameter value type mismatch")

	// ErrParameterBound indicates a direct Set on a parameter bound to a source.
	ErrParameterBound = errors.New("parameter is bound")

	// ErrNilStrategy indicates a nil computation strategy.
	ErrNilStrategy = errors.New("nil computation strategy")

	// ErrNoPosition is returned by strategies that cannot derive a position.
	// Anchors absorb it and keep the previous position.
	ErrNoPosition = errors.New("no position could be derived")
)
