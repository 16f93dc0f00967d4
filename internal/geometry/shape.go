package geometry

import "fmt"

// boundaryEps is the distance under which a point counts as lying on an outline
// for containment tests.
const boundaryEps = 1e-9

// Kind distinguishes the outline families an anchorage may expose.
type Kind int

const (
	// KindShape is a single closed outline with an interior.
	KindShape Kind = iota
	// KindCurve is an open outline without an interior.
	KindCurve
	// KindPath is a compound outline made of several sub-paths.
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindCurve:
		return "curve"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// Geometry is an outline expressed in some local coordinate space.
type Geometry interface {
	Kind() Kind
	// Bounds returns the axis-aligned bounding box of all vertices.
	Bounds() Rect
	// Outline enumerates the boundary segments in a stable order.
	Outline() ([]Segment, error)
	// Contains reports whether p is inside or on the outline. Curves have no
	// interior and only contain points lying on them.
	Contains(p Point) bool
	// Map returns a copy with every vertex passed through fn.
	Map(fn func(Point) Point) Geometry
}

// Polygon is a closed shape given by its vertices in order.
type Polygon struct {
	Points []Point `json:"points"`
}

// NewPolygon returns a closed polygon through the given vertices.
func NewPolygon(points ...Point) *Polygon {
	return &Polygon{Points: points}
}

// Rectangle returns the axis-aligned rectangle with the given origin and size
// as a polygon, vertices in clockwise screen order starting at the origin.
func Rectangle(x, y, w, h float64) *Polygon {
	return NewPolygon(Pt(x, y), Pt(x+w, y), Pt(x+w, y+h), Pt(x, y+h))
}

func (g *Polygon) Kind() Kind { return KindShape }

func (g *Polygon) Bounds() Rect {
	r, _ := BoundsOf(g.Points)
	return r
}

func (g *Polygon) Outline() ([]Segment, error) {
	if err := validate(g.Points); err != nil {
		return nil, err
	}
	return chain(g.Points, true), nil
}

func (g *Polygon) Contains(p Point) bool {
	segs, err := g.Outline()
	if err != nil {
		return false
	}
	return onOutline(segs, p) || evenOdd(segs, p)
}

func (g *Polygon) Map(fn func(Point) Point) Geometry {
	return &Polygon{Points: mapPoints(g.Points, fn)}
}

// Polyline is an open curve through the given vertices.
type Polyline struct {
	Points []Point `json:"points"`
}

// NewPolyline returns an open curve through the given vertices.
func NewPolyline(points ...Point) *Polyline {
	return &Polyline{Points: points}
}

func (g *Polyline) Kind() Kind { return KindCurve }

func (g *Polyline) Bounds() Rect {
	r, _ := BoundsOf(g.Points)
	return r
}

func (g *Polyline) Outline() ([]Segment, error) {
	if err := validate(g.Points); err != nil {
		return nil, err
	}
	return chain(g.Points, false), nil
}

func (g *Polyline) Contains(p Point) bool {
	segs, err := g.Outline()
	if err != nil {
		return false
	}
	return onOutline(segs, p)
}

func (g *Polyline) Map(fn func(Point) Point) Geometry {
	return &Polyline{Points: mapPoints(g.Points, fn)}
}

// Subpath is one connected run of a compound path.
type Subpath struct {
	Points []Point `json:"points"`
	Closed bool    `json:"closed"`
}

// Path is a compound outline. Containment uses the even-odd rule over the
// closed sub-paths.
type Path struct {
	Subpaths []Subpath `json:"subpaths"`
}

func (g *Path) Kind() Kind { return KindPath }

func (g *Path) Bounds() Rect {
	r, _ := BoundsOf(g.allPoints())
	return r
}

func (g *Path) Outline() ([]Segment, error) {
	if err := validate(g.allPoints()); err != nil {
		return nil, err
	}
	var segs []Segment
	for _, sp := range g.Subpaths {
		if len(sp.Points) == 0 {
			continue
		}
		segs = append(segs, chain(sp.Points, sp.Closed)...)
	}
	return segs, nil
}

func (g *Path) Contains(p Point) bool {
	segs, err := g.Outline()
	if err != nil {
		return false
	}
	if onOutline(segs, p) {
		return true
	}

	var closed []Segment
	for _, sp := range g.Subpaths {
		if sp.Closed && len(sp.Points) > 2 {
			closed = append(closed, chain(sp.Points, true)...)
		}
	}
	return evenOdd(closed, p)
}

func (g *Path) Map(fn func(Point) Point) Geometry {
	out := &Path{Subpaths: make([]Subpath, len(g.Subpaths))}
	for i, sp := range g.Subpaths {
		out.Subpaths[i] = Subpath{Points: mapPoints(sp.Points, fn), Closed: sp.Closed}
	}
	return out
}

func (g *Path) allPoints() []Point {
	var points []Point
	for _, sp := range g.Subpaths {
		points = append(points, sp.Points...)
	}
	return points
}

func validate(points []Point) error {
	if len(points) == 0 {
		return ErrEmptyGeometry
	}
	for i, p := range points {
		if !p.IsFinite() {
			return fmt.Errorf("vertex %d %v: %w", i, p, ErrNonFinite)
		}
	}
	return nil
}

// chain connects consecutive points. A single point yields one zero-length
// segment so that it still has an outline.
func chain(points []Point, closed bool) []Segment {
	if len(points) == 1 {
		return []Segment{{A: points[0], B: points[0]}}
	}
	segs := make([]Segment, 0, len(points))
	for i := 0; i+1 < len(points); i++ {
		segs = append(segs, Segment{A: points[i], B: points[i+1]})
	}
	if closed && points[len(points)-1] != points[0] {
		segs = append(segs, Segment{A: points[len(points)-1], B: points[0]})
	}
	return segs
}

func onOutline(segs []Segment, p Point) bool {
	for _, s := range segs {
		if s.Contains(p, boundaryEps) {
			return true
		}
	}
	return false
}

// evenOdd casts a horizontal ray from p and counts crossings.
func evenOdd(segs []Segment, p Point) bool {
	inside := false
	for _, s := range segs {
		a, b := s.A, s.B
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

func mapPoints(points []Point, fn func(Point) Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = fn(p)
	}
	return out
}
