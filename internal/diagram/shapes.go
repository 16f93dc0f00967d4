package diagram

import (
	"encoding/json"
	"fmt"

	"github.com/inamate/anchors/internal/geometry"
)

// Geometry builds the node outline in its local space from Data.
//
//	ShapeRect     {"width": w, "height": h}, origin at the top-left corner
//	ShapeEllipse  {"rx": rx, "ry": ry}, centred on the origin
//	Polygon       {"points": [[x, y], ...]}
//	Polyline      {"points": [[x, y], ...]}, an open curve
//	VectorPath    {"commands": [["M", x, y], ["L", x, y], ..., ["Z"]]}
func (n Node) Geometry() (geometry.Geometry, error) {
	switch n.Type {
	case NodeTypeShapeRect:
		var d struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := decode(n.Data, &d); err != nil {
			return nil, err
		}
		if d.Width <= 0 || d.Height <= 0 {
			return nil, fmt.Errorf("%w: rect %gx%g", ErrInvalidNodeData, d.Width, d.Height)
		}
		return geometry.Rectangle(0, 0, d.Width, d.Height), nil

	case NodeTypeShapeEllipse:
		var d struct {
			RX float64 `json:"rx"`
			RY float64 `json:"ry"`
		}
		if err := decode(n.Data, &d); err != nil {
			return nil, err
		}
		if d.RX <= 0 || d.RY <= 0 {
			return nil, fmt.Errorf("%w: ellipse radii %g, %g", ErrInvalidNodeData, d.RX, d.RY)
		}
		return fromCommands(geometry.EllipsePath(d.RX, d.RY))

	case NodeTypePolygon, NodeTypePolyline:
		var d struct {
			Points [][2]float64 `json:"points"`
		}
		if err := decode(n.Data, &d); err != nil {
			return nil, err
		}
		points := make([]geometry.Point, len(d.Points))
		for i, p := range d.Points {
			points[i] = geometry.Pt(p[0], p[1])
		}
		var g geometry.Geometry = geometry.NewPolygon(points...)
		if n.Type == NodeTypePolyline {
			g = geometry.NewPolyline(points...)
		}
		if _, err := g.Outline(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
		}
		return g, nil

	case NodeTypeVectorPath:
		var d struct {
			Commands [][]interface{} `json:"commands"`
		}
		if err := decode(n.Data, &d); err != nil {
			return nil, err
		}
		cmds := make([]geometry.PathCommand, len(d.Commands))
		for i, c := range d.Commands {
			cmds[i] = geometry.PathCommand(c)
		}
		return fromCommands(cmds)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, n.Type)
	}
}

// RectData returns Data for a ShapeRect node.
func RectData(w, h float64) json.RawMessage {
	return mustMarshal(map[string]float64{"width": w, "height": h})
}

// EllipseData returns Data for a ShapeEllipse node.
func EllipseData(rx, ry float64) json.RawMessage {
	return mustMarshal(map[string]float64{"rx": rx, "ry": ry})
}

// PointsData returns Data for a Polygon or Polyline node.
func PointsData(points ...geometry.Point) json.RawMessage {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.X, p.Y}
	}
	return mustMarshal(map[string][][2]float64{"points": out})
}

func fromCommands(cmds []geometry.PathCommand) (geometry.Geometry, error) {
	p, err := geometry.FromCommands(cmds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}
	return p, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", ErrInvalidNodeData)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}
	return nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
