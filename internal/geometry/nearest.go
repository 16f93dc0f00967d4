package geometry

import "math"

// Nearest returns the index of the candidate closest to target. Exact ties are
// resolved in favour of the lowest index. It returns -1 for no candidates.
func Nearest(candidates []Point, target Point) int {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range candidates {
		if d := c.Distance(target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Vertices lists the corner points of an outline in outline order. Each chain
// of connected segments contributes its start once; a closing segment does not
// repeat it.
func Vertices(segs []Segment) []Point {
	points := make([]Point, 0, len(segs)+1)
	var chainStart Point
	for i, s := range segs {
		if i == 0 || segs[i-1].B != s.A {
			chainStart = s.A
			points = append(points, s.A)
		}
		if s.B != chainStart {
			points = append(points, s.B)
		}
	}
	return points
}

// NearestVertex returns the outline vertex closest to target. The first vertex
// found wins on exact ties.
func NearestVertex(segs []Segment, target Point) (Point, error) {
	vertices := Vertices(segs)
	i := Nearest(vertices, target)
	if i < 0 {
		return Point{}, ErrEmptyGeometry
	}
	return vertices[i], nil
}

// NearestOutlinePoint returns the point on the outline closest to target and
// the index of the segment it lies on. Exact ties favour the lowest index.
func NearestOutlinePoint(segs []Segment, target Point) (Point, int, error) {
	if len(segs) == 0 {
		return Point{}, -1, ErrEmptyGeometry
	}
	candidates := make([]Point, len(segs))
	for i, s := range segs {
		candidates[i] = s.ClosestPoint(target)
	}
	i := Nearest(candidates, target)
	return candidates[i], i, nil
}
