package anchor

import (
	"fmt"
	"math"

	"github.com/inamate/anchors/internal/geometry"
)

// ChopBoxStrategy projects the attachment onto the anchorage outline along
// the line from the anchorage reference point to the anchored reference
// point. Everything is computed in scene space.
//
// When the anchored point already lies on the outline it is returned as is.
// Among all intersections of the reference line with the outline the one
// nearest to the anchored point wins; on equal distances the lowest outline
// segment index wins. When the two reference points coincide the anchorage
// reference point is returned. Without any intersection the result is the
// reference-point result: the static AnchorageReferencePosition when set,
// else the anchorage reference point.
type ChopBoxStrategy struct {
	// Epsilon is the on-outline and coincidence tolerance. Zero means
	// DefaultEpsilon.
	Epsilon float64
}

func (ChopBoxStrategy) Name() string { return "chopbox" }

func (ChopBoxStrategy) RequiredParameters() []Requirement {
	return []Requirement{AnchorageReferenceGeometry, AnchoredReferencePoint}
}

func (s ChopBoxStrategy) Compute(anchorage, anchored Visual, params *Params) (geometry.Point, error) {
	eps := epsilonOr(s.Epsilon)

	in, err := projectionInputs(anchorage, anchored, params)
	if err != nil {
		return geometry.Point{}, err
	}
	if p, ok := in.onOutline(eps); ok {
		return p, nil
	}

	ref, haveRef, err := AnchorageReferencePoint(in.geom)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("%w: anchorage reference point: %w", ErrNoPosition, err)
	}
	if !haveRef {
		strategyFallbacks.WithLabelValues(s.Name(), "open-curve").Inc()
		return fallback(anchorage, params, in, ref, false)
	}

	refScene := anchorage.LocalToScene(ref)
	if refScene.ApproxEqual(in.anchored, eps) {
		strategyFallbacks.WithLabelValues(s.Name(), "coincident").Inc()
		return referencePoint(anchorage, ref)
	}

	if p, ok := nearestIntersection(geometry.Seg(refScene, in.anchored), in.segs, in.anchored); ok {
		return p, nil
	}
	strategyFallbacks.WithLabelValues(s.Name(), "no-intersection").Inc()
	return fallback(anchorage, params, in, ref, true)
}

// nearestIntersection intersects line with every segment and keeps the point
// nearest to target. Strict comparison keeps the first segment on ties.
func nearestIntersection(line geometry.Segment, segs []geometry.Segment, target geometry.Point) (geometry.Point, bool) {
	var best geometry.Point
	bestDist := math.Inf(1)
	found := false
	for _, seg := range segs {
		for _, p := range line.Intersections(seg) {
			if d := p.Distance(target); d < bestDist {
				best, bestDist, found = p, d, true
			}
		}
	}
	return best, found
}
