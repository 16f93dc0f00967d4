package scene

import (
	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/observable"
)

// Node is a resolved, positioned outline in the scene.
type Node struct {
	id    string
	scene *Scene

	// Transform state
	local geometry.Matrix2D
	geom  geometry.Geometry

	// Hierarchy
	parent   *Node
	children []*Node

	visual   observable.Signal[struct{}]
	presence observable.Signal[bool]
}

// NewNode creates a detached node. geom is expressed in the node's local space
// and may be nil for pure groups.
func NewNode(id string, geom geometry.Geometry, local geometry.Matrix2D) *Node {
	return &Node{id: id, geom: geom, local: local}
}

func (n *Node) ID() string { return n.id }

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Children() []*Node { return n.children }

// Geometry returns the outline in local space.
func (n *Node) Geometry() geometry.Geometry { return n.geom }

// SetGeometry replaces the outline and notifies visual observers.
func (n *Node) SetGeometry(g geometry.Geometry) {
	n.geom = g
	n.visual.Emit(struct{}{})
}

// Transform returns the local transform relative to the parent.
func (n *Node) Transform() geometry.Matrix2D { return n.local }

// SetTransform replaces the local transform. The node and all of its
// descendants observe a visual change because their scene transforms moved.
func (n *Node) SetTransform(m geometry.Matrix2D) {
	if m == n.local {
		return
	}
	n.local = m
	n.emitVisualSubtree()
}

// WorldTransform returns parent * local up to the root.
func (n *Node) WorldTransform() geometry.Matrix2D {
	m := n.local
	for p := n.parent; p != nil; p = p.parent {
		m = p.local.Multiply(m)
	}
	return m
}

func (n *Node) LocalToScene(p geometry.Point) geometry.Point {
	return n.WorldTransform().Apply(p)
}

// SceneToLocal maps a scene point into local space. A singular transform maps
// every point to NaN.
func (n *Node) SceneToLocal(p geometry.Point) geometry.Point {
	inv, _ := n.WorldTransform().Invert()
	return inv.Apply(p)
}

// InScene reports whether the node is reachable from a scene root.
func (n *Node) InScene() bool { return n.scene != nil }

// SceneBounds returns the bounds of the outline in scene space.
func (n *Node) SceneBounds() geometry.Rect {
	if n.geom == nil {
		return geometry.Rect{}
	}
	return n.geom.Map(n.LocalToScene).Bounds()
}

// SubscribeVisual registers fn for geometry and transform changes.
func (n *Node) SubscribeVisual(fn func()) *observable.Handle {
	return n.visual.Subscribe(func(struct{}) { fn() })
}

// SubscribePresence registers fn for scene presence changes.
func (n *Node) SubscribePresence(fn func(inScene bool)) *observable.Handle {
	return n.presence.Subscribe(fn)
}

// VisualSubscribers returns the number of live visual subscriptions.
func (n *Node) VisualSubscribers() int { return n.visual.Len() }

// PresenceSubscribers returns the number of live presence subscriptions.
func (n *Node) PresenceSubscribers() int { return n.presence.Len() }

func (n *Node) subtree() []*Node {
	out := []*Node{n}
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].children...)
	}
	return out
}

func (n *Node) emitVisualSubtree() {
	for _, c := range n.subtree() {
		c.visual.Emit(struct{}{})
	}
}
