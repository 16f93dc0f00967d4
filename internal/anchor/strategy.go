package anchor

import (
	"fmt"

	"github.com/inamate/anchors/internal/geometry"
)

// DefaultEpsilon is the distance under which two scene points are treated as
// the same point by the built-in strategies.
const DefaultEpsilon = 1e-9

// Strategy computes the scene position of one attachment.
type Strategy interface {
	Name() string
	// RequiredParameters lists the parameters Compute reads. Dynamic anchors
	// provision them when a key is attached.
	RequiredParameters() []Requirement
	// Compute returns the attachment point in scene space, or an error
	// wrapping ErrNoPosition when none can be derived.
	Compute(anchorage, anchored Visual, params *Params) (geometry.Point, error)
}

// ReferencePointStrategy places the attachment at the static
// AnchorageReferencePosition, transformed into scene space.
type ReferencePointStrategy struct{}

func (ReferencePointStrategy) Name() string { return "reference-point" }

func (ReferencePointStrategy) RequiredParameters() []Requirement {
	return []Requirement{AnchorageReferencePosition}
}

func (ReferencePointStrategy) Compute(anchorage, _ Visual, params *Params) (geometry.Point, error) {
	pos, err := Lookup(params, AnchorageReferencePosition)
	if err != nil {
		return geometry.Point{}, err
	}
	return referencePoint(anchorage, pos)
}

// referencePoint is the reference-point result shared with the fallbacks of
// the projecting strategies.
func referencePoint(anchorage Visual, local geometry.Point) (geometry.Point, error) {
	p := anchorage.LocalToScene(local)
	if !p.IsFinite() {
		return geometry.Point{}, fmt.Errorf("%w: reference point %v: %w", ErrNoPosition, p, geometry.ErrNonFinite)
	}
	return p, nil
}

// AnchorageReferencePoint picks the anchorage-side point a reference line
// starts from, in the geometry's local space. For shapes and compound paths it
// is the bounds-center when the geometry contains it, else the outline vertex
// nearest to the bounds-center. Open curves have no such point and report
// false.
func AnchorageReferencePoint(g geometry.Geometry) (geometry.Point, bool, error) {
	if g == nil {
		return geometry.Point{}, false, geometry.ErrEmptyGeometry
	}
	if g.Kind() == geometry.KindCurve {
		return geometry.Point{}, false, nil
	}

	segs, err := g.Outline()
	if err != nil {
		return geometry.Point{}, false, err
	}
	center := g.Bounds().Center()
	if g.Contains(center) {
		return center, true, nil
	}
	v, err := geometry.NearestVertex(segs, center)
	if err != nil {
		return geometry.Point{}, false, err
	}
	return v, true, nil
}

// sceneInputs are the values both projecting strategies start from.
type sceneInputs struct {
	geom     geometry.Geometry
	segs     []geometry.Segment
	anchored geometry.Point
}

func projectionInputs(anchorage, anchored Visual, params *Params) (sceneInputs, error) {
	var in sceneInputs

	geom, err := Lookup(params, AnchorageReferenceGeometry)
	if err != nil {
		return in, err
	}
	if geom == nil {
		return in, fmt.Errorf("%w: %w", ErrNoPosition, geometry.ErrEmptyGeometry)
	}
	local, err := Lookup(params, AnchoredReferencePoint)
	if err != nil {
		return in, err
	}

	segs, err := geom.Outline()
	if err != nil {
		return in, fmt.Errorf("%w: anchorage outline: %w", ErrNoPosition, err)
	}

	in.geom = geom
	in.anchored = anchored.LocalToScene(local)
	if !in.anchored.IsFinite() {
		return in, fmt.Errorf("%w: anchored reference point %v: %w", ErrNoPosition, in.anchored, geometry.ErrNonFinite)
	}
	in.segs = make([]geometry.Segment, len(segs))
	for i, s := range segs {
		in.segs[i] = s.Map(anchorage.LocalToScene)
	}
	return in, nil
}

// onOutline returns the anchored point when it already lies on the outline.
func (in sceneInputs) onOutline(eps float64) (geometry.Point, bool) {
	for _, s := range in.segs {
		if s.Contains(in.anchored, eps) {
			return in.anchored, true
		}
	}
	return geometry.Point{}, false
}

// fallback returns the reference-point result: the static
// AnchorageReferencePosition when supplied, else the anchorage reference point
// when one exists, else the bounds-center.
func fallback(anchorage Visual, params *Params, in sceneInputs, ref geometry.Point, haveRef bool) (geometry.Point, error) {
	if pos, ok := LookupOptional(params, AnchorageReferencePosition); ok {
		return referencePoint(anchorage, pos)
	}
	if haveRef {
		return referencePoint(anchorage, ref)
	}
	return referencePoint(anchorage, in.geom.Bounds().Center())
}

func epsilonOr(eps float64) float64 {
	if eps > 0 {
		return eps
	}
	return DefaultEpsilon
}
