// Package geometry provides the 2D primitives consumed by the anchor engine:
// points, affine matrices, axis-aligned rectangles, line segments and the three
// outline kinds an anchorage can expose (closed polygons, open polylines and
// compound paths built from path commands).
//
// All operations are pure. Degenerate inputs are reported with ErrEmptyGeometry
// or ErrNonFinite instead of panicking.
package geometry
