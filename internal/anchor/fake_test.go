package anchor_test

import (
	"github.com/inamate/anchors/internal/anchor"
	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/observable"
)

// fakeVisual is a hand-driven Visual: tests move it, swap its geometry and
// toggle its scene presence explicitly.
type fakeVisual struct {
	id      string
	geom    geometry.Geometry
	m       geometry.Matrix2D
	inScene bool

	visual   observable.Signal[struct{}]
	presence observable.Signal[bool]
}

func newFake(id string, geom geometry.Geometry, x, y float64) *fakeVisual {
	return &fakeVisual{id: id, geom: geom, m: geometry.Translate(x, y), inScene: true}
}

func (v *fakeVisual) ID() string { return v.id }
func (v *fakeVisual) Geometry() geometry.Geometry { return v.geom }
func (v *fakeVisual) InScene() bool { return v.inScene }

func (v *fakeVisual) LocalToScene(p geometry.Point) geometry.Point { return v.m.Apply(p) }

func (v *fakeVisual) SceneToLocal(p geometry.Point) geometry.Point {
	inv, _ := v.m.Invert()
	return inv.Apply(p)
}

func (v *fakeVisual) SubscribeVisual(fn func()) *observable.Handle {
	return v.visual.Subscribe(func(struct{}) { fn() })
}

func (v *fakeVisual) SubscribePresence(fn func(bool)) *observable.Handle {
	return v.presence.Subscribe(fn)
}

func (v *fakeVisual) moveTo(x, y float64) {
	v.m = geometry.Translate(x, y)
	v.visual.Emit(struct{}{})
}

func (v *fakeVisual) setGeometry(g geometry.Geometry) {
	v.geom = g
	v.visual.Emit(struct{}{})
}

// touch announces a visual change without changing anything.
func (v *fakeVisual) touch() {
	v.visual.Emit(struct{}{})
}

func (v *fakeVisual) setInScene(in bool) {
	v.inScene = in
	v.presence.Emit(in)
}

// square is the 100x100 anchorage at the scene origin.
func square() *fakeVisual {
	return newFake("square", geometry.Rectangle(0, 0, 100, 100), 0, 0)
}

// point is an anchored element whose local origin sits at (x, y).
func point(id string, x, y float64) *fakeVisual {
	return newFake(id, geometry.Rectangle(-5, -5, 10, 10), x, y)
}

// uShape is a concave polygon whose bounds-center (50,50) sits in the notch.
func uShape() *geometry.Polygon {
	return geometry.NewPolygon(
		geometry.Pt(0, 0), geometry.Pt(100, 0), geometry.Pt(100, 100), geometry.Pt(70, 100),
		geometry.Pt(70, 30), geometry.Pt(30, 30), geometry.Pt(30, 100), geometry.Pt(0, 100),
	)
}

// funcStrategy adapts a function to Strategy.
type funcStrategy func(anchorage, anchored anchor.Visual) (geometry.Point, error)

func (funcStrategy) Name() string { return "func" }

func (funcStrategy) RequiredParameters() []anchor.Requirement { return nil }

func (f funcStrategy) Compute(anchorage, anchored anchor.Visual, _ *anchor.Params) (geometry.Point, error) {
	return f(anchorage, anchored)
}
