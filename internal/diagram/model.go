package diagram

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/inamate/anchors/internal/geometry"
)

type Diagram struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Version     int                   `json:"version"`
	CreatedAt   string                `json:"createdAt"`
	UpdatedAt   string                `json:"updatedAt"`
	Nodes       map[string]Node       `json:"nodes"`
	Connections map[string]Connection `json:"connections"`
}

type NodeType string

const (
	NodeTypeShapeRect    NodeType = "ShapeRect"
	NodeTypeShapeEllipse NodeType = "ShapeEllipse"
	NodeTypePolygon      NodeType = "Polygon"
	NodeTypeVectorPath   NodeType = "VectorPath"
	NodeTypePolyline     NodeType = "Polyline"
)

type Transform struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	SX float64 `json:"sx"`
	SY float64 `json:"sy"`
	R  float64 `json:"r"`
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
}

// At returns an unscaled, unrotated transform placing the origin at (x, y).
func At(x, y float64) Transform {
	return Transform{X: x, Y: y, SX: 1, SY: 1}
}

// Matrix returns the local matrix of the transform.
func (t Transform) Matrix() geometry.Matrix2D {
	return geometry.FromTransform(t.X, t.Y, t.SX, t.SY, t.R, t.AX, t.AY)
}

type Style struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
	Opacity     float64 `json:"opacity"`
}

// Node is a shape connections attach to. Data holds the type specific
// outline description in the node's local space.
type Node struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      NodeType        `json:"type"`
	Transform Transform       `json:"transform"`
	Style     Style           `json:"style"`
	Visible   bool            `json:"visible"`
	Strategy  string          `json:"strategy,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Connection joins two nodes. Its start attaches to From, its end to To.
type Connection struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Orientation string `json:"orientation,omitempty"`
	Style       Style  `json:"style"`
}

// NewEmptyDiagram creates a diagram without nodes.
func NewEmptyDiagram(id, name string) *Diagram {
	return &Diagram{
		ID:          id,
		Name:        name,
		Version:     1,
		Nodes:       map[string]Node{},
		Connections: map[string]Connection{},
	}
}

// ConnectionsOf returns the ids of the connections touching nodeID, sorted.
func (d *Diagram) ConnectionsOf(nodeID string) []string {
	var ids []string
	for id, c := range d.Connections {
		if c.From == nodeID || c.To == nodeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// NodeIDs returns all node ids, sorted.
func (d *Diagram) NodeIDs() []string {
	ids := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionIDs returns all connection ids, sorted.
func (d *Diagram) ConnectionIDs() []string {
	ids := make([]string, 0, len(d.Connections))
	for id := range d.Connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every node has a buildable outline and every
// connection joins existing nodes.
func (d *Diagram) Validate() error {
	for _, id := range d.NodeIDs() {
		n := d.Nodes[id]
		if n.ID != id {
			return fmt.Errorf("node %q stored under %q: %w", n.ID, id, ErrInvalidDiagram)
		}
		if _, err := n.Geometry(); err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
	}
	for _, id := range d.ConnectionIDs() {
		c := d.Connections[id]
		if c.ID != id {
			return fmt.Errorf("connection %q stored under %q: %w", c.ID, id, ErrInvalidDiagram)
		}
		if _, ok := d.Nodes[c.From]; !ok {
			return fmt.Errorf("connection %s from %q: %w", id, c.From, ErrDanglingConnection)
		}
		if _, ok := d.Nodes[c.To]; !ok {
			return fmt.Errorf("connection %s to %q: %w", id, c.To, ErrDanglingConnection)
		}
	}
	return nil
}

// Clone returns a deep copy through the JSON form.
func (d *Diagram) Clone() (*Diagram, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal diagram: %w", err)
	}
	var out Diagram
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal diagram: %w", err)
	}
	return &out, nil
}
