package geometry

import "math"

// paramEps is the tolerance applied to segment parameters in [0, 1].
const paramEps = 1e-9

// Segment is a straight line segment from A to B.
type Segment struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

// Seg is shorthand for Segment{A: a, B: b}.
func Seg(a, b Point) Segment {
	return Segment{A: a, B: b}
}

func (s Segment) Length() float64 {
	return s.A.Distance(s.B)
}

// IsDegenerate reports whether both end points coincide within eps.
func (s Segment) IsDegenerate(eps float64) bool {
	return s.A.ApproxEqual(s.B, eps)
}

// At returns the point at parameter t, where t=0 is A and t=1 is B.
func (s Segment) At(t float64) Point {
	return s.A.Add(s.B.Sub(s.A).Mul(t))
}

// ClosestPoint returns the point on s nearest to p.
func (s Segment) ClosestPoint(p Point) Point {
	d := s.B.Sub(s.A)
	lenSq := d.Dot(d)
	if lenSq == 0 {
		return s.A
	}
	t := p.Sub(s.A).Dot(d) / lenSq
	t = math.Max(0, math.Min(1, t))
	return s.At(t)
}

// Contains reports whether p lies on s within eps.
func (s Segment) Contains(p Point, eps float64) bool {
	return s.ClosestPoint(p).Distance(p) <= eps
}

// Map returns the segment with both end points passed through fn.
func (s Segment) Map(fn func(Point) Point) Segment {
	return Segment{A: fn(s.A), B: fn(s.B)}
}

// Intersections returns the points where s and o meet. Crossing segments yield
// one point; collinear overlapping segments yield the end points of the
// overlap (one point when the overlap is a single point). The returned points
// are ordered by their parameter along s.
func (s Segment) Intersections(o Segment) []Point {
	r := s.B.Sub(s.A)
	q := o.B.Sub(o.A)
	qp := o.A.Sub(s.A)

	denom := r.Cross(q)
	scale := math.Max(r.Dot(r), q.Dot(q))
	if scale == 0 {
		if s.A == o.A {
			return []Point{s.A}
		}
		return nil
	}

	if math.Abs(denom) <= paramEps*scale {
		if math.Abs(qp.Cross(r)) > paramEps*scale {
			return nil
		}
		return collinearOverlap(s, o)
	}

	t := qp.Cross(q) / denom
	u := qp.Cross(r) / denom
	if t < -paramEps || t > 1+paramEps || u < -paramEps || u > 1+paramEps {
		return nil
	}
	t = math.Max(0, math.Min(1, t))
	return []Point{s.At(t)}
}

// collinearOverlap handles the parallel-and-collinear case of Intersections.
func collinearOverlap(s, o Segment) []Point {
	r := s.B.Sub(s.A)
	rr := r.Dot(r)
	if rr == 0 {
		if o.Contains(s.A, paramEps) {
			return []Point{s.A}
		}
		return nil
	}

	t0 := o.A.Sub(s.A).Dot(r) / rr
	t1 := o.B.Sub(s.A).Dot(r) / rr
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	lo := math.Max(0, t0)
	hi := math.Min(1, t1)
	if lo > hi+paramEps {
		return nil
	}
	if hi-lo <= paramEps {
		return []Point{s.At(lo)}
	}
	return []Point{s.At(lo), s.At(hi)}
}
