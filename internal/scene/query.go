package scene

import "github.com/inamate/anchors/internal/geometry"

// HitTest returns the id of the frontmost node whose outline contains the
// scene point p, or "" when none does. Later children are in front.
func (s *Scene) HitTest(p geometry.Point) string {
	return hitTestNode(s.Root, p)
}

// hitTestNode tests children first, front to back.
func hitTestNode(n *Node, p geometry.Point) string {
	for i := len(n.children) - 1; i >= 0; i-- {
		if hit := hitTestNode(n.children[i], p); hit != "" {
			return hit
		}
	}
	if n.geom != nil && n.geom.Contains(n.SceneToLocal(p)) {
		return n.id
	}
	return ""
}

// SelectionBounds returns the union of the scene bounds of the given nodes.
// Unknown ids and nodes without geometry are skipped.
func (s *Scene) SelectionBounds(ids []string) geometry.Rect {
	var result geometry.Rect
	first := true

	for _, id := range ids {
		n, ok := s.NodesByID[id]
		if !ok || n.geom == nil {
			continue
		}
		b := n.SceneBounds()
		if first {
			result = b
			first = false
		} else {
			result = result.Union(b)
		}
	}

	return result
}
