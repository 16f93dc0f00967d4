package anchor

import (
	"fmt"

	"github.com/inamate/anchors/internal/geometry"
)

// Orientation is the preferred direction of an orthogonal projection.
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Other returns the perpendicular orientation.
func (o Orientation) Other() Orientation {
	if o == Vertical {
		return Horizontal
	}
	return Vertical
}

// ParseOrientation parses "horizontal" or "vertical".
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "horizontal":
		return Horizontal, nil
	case "vertical":
		return Vertical, nil
	default:
		return Horizontal, fmt.Errorf("unknown orientation %q", s)
	}
}

func pointsEqual(a, b geometry.Point) bool { return a == b }

var (
	// AnchorageReferencePosition is a point in the anchorage's local space.
	AnchorageReferencePosition = Descriptor[geometry.Point]{
		Type:  "anchorage-reference-position",
		Kind:  Static,
		Equal: pointsEqual,
	}

	// AnchorageReferenceGeometry is the anchorage outline in its local space.
	// Dynamic anchors keep it bound to the anchorage's own geometry.
	AnchorageReferenceGeometry = Descriptor[geometry.Geometry]{
		Type: "anchorage-reference-geometry",
		Kind: Static,
	}

	// AnchoredReferencePoint is a point in the anchored element's local space,
	// typically the far end of the connection.
	AnchoredReferencePoint = Descriptor[geometry.Point]{
		Type:  "anchored-reference-point",
		Kind:  Dynamic,
		Equal: pointsEqual,
	}

	// PreferredOrientation steers orthogonal projection. Strategies fall back
	// to Horizontal when it is absent.
	PreferredOrientation = Descriptor[Orientation]{
		Type:     "preferred-orientation",
		Kind:     Dynamic,
		Optional: true,
		Default:  func() Orientation { return Horizontal },
	}
)
