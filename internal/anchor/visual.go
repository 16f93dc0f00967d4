package anchor

import (
	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/observable"
)

// Visual is an element of the scene an anchor observes: the anchorage itself
// or the anchored element of a key. Anchors never mutate a Visual.
type Visual interface {
	ID() string
	// Geometry returns the element's outline in its local space.
	Geometry() geometry.Geometry
	LocalToScene(p geometry.Point) geometry.Point
	SceneToLocal(p geometry.Point) geometry.Point
	// InScene reports whether the element currently has scene presence.
	InScene() bool
	// SubscribeVisual registers fn for geometry and scene transform changes.
	SubscribeVisual(fn func()) *observable.Handle
	// SubscribePresence registers fn for scene presence changes.
	SubscribePresence(fn func(inScene bool)) *observable.Handle
}

// NotificationKind tags the events an anchor reacts to.
type NotificationKind int

const (
	VisualChanged NotificationKind = iota
	ParameterChanged
	ScenePresenceChanged
)

func (k NotificationKind) String() string {
	switch k {
	case VisualChanged:
		return "visual"
	case ParameterChanged:
		return "parameter"
	case ScenePresenceChanged:
		return "presence"
	default:
		return "unknown"
	}
}

// notification is delivered to the single anchor handler. Source is the
// anchored element id, or empty for the anchorage. Keys narrows a parameter
// change to specific keys; nil means every attached key.
type notification struct {
	kind      NotificationKind
	anchorage bool
	source    string
	keys      []Key
}
