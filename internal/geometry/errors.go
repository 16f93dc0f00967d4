package geometry

import "errors"

var (
	// ErrEmptyGeometry indicates an outline without any vertices.
	ErrEmptyGeometry = errors.New("geometry has no vertices")

	// ErrNonFinite indicates a NaN or infinite coordinate.
	ErrNonFinite = errors.New("geometry has non-finite coordinates")
)

// ErrMalformedPath indicates a path command with a missing operator or operands.
var ErrMalformedPath = errors.New("malformed path command")
