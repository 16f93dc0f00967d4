// Package scene is a retained scene graph of positioned outlines. Nodes carry
// a local transform and a geometry in local space; a node is present in the
// scene while it is reachable from the root. Nodes announce visual changes
// (geometry or effective transform) and presence changes through signals,
// which is all the anchor engine needs to observe them.
package scene

import (
	"errors"
	"fmt"

	"github.com/inamate/anchors/internal/geometry"
)

// RootID is the id of every scene's root group.
const RootID = "root"

var (
	ErrNodeInScene    = errors.New("node is already in a scene")
	ErrNodeNotInScene = errors.New("node is not in the scene")
	ErrDuplicateID    = errors.New("duplicate node id")
	ErrRemoveRoot     = errors.New("cannot remove the scene root")
)

// Scene owns the node tree. It is not safe for concurrent use.
type Scene struct {
	Root      *Node
	NodesByID map[string]*Node
}

// NewScene creates a scene holding only its root group.
func NewScene() *Scene {
	s := &Scene{NodesByID: make(map[string]*Node)}
	s.Root = NewNode(RootID, nil, geometry.Identity())
	s.Root.scene = s
	s.NodesByID[RootID] = s.Root
	return s
}

// Node returns the node with the given id if it is in the scene.
func (s *Scene) Node(id string) (*Node, bool) {
	n, ok := s.NodesByID[id]
	return n, ok
}

// Add inserts n and its subtree below parent. Every inserted node gains scene
// presence; presence notifications are delivered after the tree is updated.
func (s *Scene) Add(n, parent *Node) error {
	if parent == nil {
		parent = s.Root
	}
	if parent.scene != s {
		return fmt.Errorf("add %s under %s: %w", n.id, parent.id, ErrNodeNotInScene)
	}
	if n.scene != nil || n.parent != nil {
		return fmt.Errorf("add %s: %w", n.id, ErrNodeInScene)
	}

	subtree := n.subtree()
	for _, c := range subtree {
		if _, taken := s.NodesByID[c.id]; taken {
			return fmt.Errorf("add %s: %w", c.id, ErrDuplicateID)
		}
	}

	n.parent = parent
	parent.children = append(parent.children, n)
	for _, c := range subtree {
		c.scene = s
		s.NodesByID[c.id] = c
	}

	for _, c := range subtree {
		c.presence.Emit(true)
	}
	return nil
}

// Remove detaches n and its subtree from the scene. The nodes keep their
// local state and may be added again later.
func (s *Scene) Remove(n *Node) error {
	if n == s.Root {
		return ErrRemoveRoot
	}
	if n.scene != s {
		return fmt.Errorf("remove %s: %w", n.id, ErrNodeNotInScene)
	}

	if p := n.parent; p != nil {
		kept := p.children[:0]
		for _, c := range p.children {
			if c != n {
				kept = append(kept, c)
			}
		}
		p.children = kept
	}
	n.parent = nil

	subtree := n.subtree()
	for _, c := range subtree {
		c.scene = nil
		delete(s.NodesByID, c.id)
	}

	for _, c := range subtree {
		c.presence.Emit(false)
	}
	return nil
}
