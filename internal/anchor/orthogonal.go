package anchor

import (
	"fmt"
	"math"

	"github.com/inamate/anchors/internal/geometry"
)

// OrthogonalStrategy attaches at the outline point reached by moving from the
// anchored reference point horizontally or vertically, so connectors leave the
// anchorage at a right angle to an axis. The optional PreferredOrientation
// picks the axis tried first (Horizontal when absent); the other axis is tried
// next and the nearest outline point is used when neither axis line meets the
// outline.
type OrthogonalStrategy struct {
	// Epsilon is the on-outline tolerance. Zero means DefaultEpsilon.
	Epsilon float64
}

func (OrthogonalStrategy) Name() string { return "orthogonal" }

func (OrthogonalStrategy) RequiredParameters() []Requirement {
	return []Requirement{AnchorageReferenceGeometry, AnchoredReferencePoint, PreferredOrientation}
}

func (s OrthogonalStrategy) Compute(anchorage, anchored Visual, params *Params) (geometry.Point, error) {
	in, err := projectionInputs(anchorage, anchored, params)
	if err != nil {
		return geometry.Point{}, err
	}
	if p, ok := in.onOutline(epsilonOr(s.Epsilon)); ok {
		return p, nil
	}

	preferred, ok := LookupOptional(params, PreferredOrientation)
	if !ok {
		preferred = Horizontal
	}
	for _, o := range []Orientation{preferred, preferred.Other()} {
		if p, ok := axisProjection(in.segs, in.anchored, o); ok {
			return p, nil
		}
	}

	strategyFallbacks.WithLabelValues(s.Name(), "nearest-point").Inc()
	p, _, err := geometry.NearestOutlinePoint(in.segs, in.anchored)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("%w: %w", ErrNoPosition, err)
	}
	return p, nil
}

// axisProjection intersects the axis-parallel line through p with every
// segment and returns the hit nearest to p.
func axisProjection(segs []geometry.Segment, p geometry.Point, o Orientation) (geometry.Point, bool) {
	// The vertical case runs the horizontal one with swapped axes.
	flip := func(q geometry.Point) geometry.Point { return q }
	if o == Vertical {
		flip = func(q geometry.Point) geometry.Point { return geometry.Pt(q.Y, q.X) }
	}

	target := flip(p)
	var best geometry.Point
	bestDist := math.Inf(1)
	found := false

	for _, s := range segs {
		a, b := flip(s.A), flip(s.B)
		if target.Y < math.Min(a.Y, b.Y) || target.Y > math.Max(a.Y, b.Y) {
			continue
		}

		var hit geometry.Point
		if a.Y == b.Y {
			hit = geometry.Seg(a, b).ClosestPoint(target)
		} else {
			hit = geometry.Pt(a.X+(target.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y), target.Y)
		}
		if d := hit.Distance(target); d < bestDist {
			best, bestDist, found = flip(hit), d, true
		}
	}
	return best, found
}
