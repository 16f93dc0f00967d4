package diagram

import (
	"encoding/json"
	"time"

	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/typeid"
)

// NewSampleDiagram returns a small diagram exercising every node type.
func NewSampleDiagram(diagramID string) *Diagram {
	now := time.Now().UTC().Format(time.RFC3339)

	serviceID := typeid.NewNodeID()
	queueID := typeid.NewNodeID()
	workerID := typeid.NewNodeID()
	storeID := typeid.NewNodeID()
	busID := typeid.NewNodeID()

	d := NewEmptyDiagram(diagramID, "Untitled")
	d.CreatedAt = now
	d.UpdatedAt = now

	d.Nodes = map[string]Node{
		serviceID: {
			ID:        serviceID,
			Name:      "Service",
			Type:      NodeTypeShapeRect,
			Transform: At(200, 200),
			Style:     Style{Fill: "#e94560", Stroke: "#000000", StrokeWidth: 2, Opacity: 1},
			Visible:   true,
			Data:      RectData(200, 150),
		},
		queueID: {
			ID:        queueID,
			Name:      "Queue",
			Type:      NodeTypeShapeEllipse,
			Transform: At(640, 360),
			Style:     Style{Fill: "#0f3460", Stroke: "#16213e", StrokeWidth: 2, Opacity: 1},
			Visible:   true,
			Data:      EllipseData(120, 80),
		},
		workerID: {
			ID:        workerID,
			Name:      "Worker",
			Type:      NodeTypeVectorPath,
			Transform: At(900, 200),
			Style:     Style{Fill: "#53d769", Stroke: "#2d6a4f", StrokeWidth: 2, Opacity: 1},
			Visible:   true,
			Strategy:  "orthogonal",
			Data:      json.RawMessage(`{"commands": [["M", 0, 150], ["L", 100, 0], ["L", 200, 150], ["Z"]]}`),
		},
		storeID: {
			ID:        storeID,
			Name:      "Store",
			Type:      NodeTypePolygon,
			Transform: At(600, 600),
			Style:     Style{Fill: "#f5a623", Stroke: "#c78400", StrokeWidth: 2, Opacity: 1},
			Visible:   true,
			// A U shape: its bounds-center lies in the notch.
			Data: PointsData(
				geometry.Pt(0, 0), geometry.Pt(100, 0), geometry.Pt(100, 100), geometry.Pt(70, 100),
				geometry.Pt(70, 30), geometry.Pt(30, 30), geometry.Pt(30, 100), geometry.Pt(0, 100),
			),
		},
		busID: {
			ID:        busID,
			Name:      "Bus",
			Type:      NodeTypePolyline,
			Transform: At(100, 700),
			Style:     Style{Stroke: "#bd10e0", StrokeWidth: 4, Opacity: 1},
			Visible:   true,
			Data:      PointsData(geometry.Pt(0, 0), geometry.Pt(1000, 0)),
		},
	}

	link := func(from, to, orientation string) {
		id := typeid.NewConnectionID()
		d.Connections[id] = Connection{
			ID:          id,
			From:        from,
			To:          to,
			Orientation: orientation,
			Style:       Style{Stroke: "#ffffff", StrokeWidth: 2, Opacity: 1},
		}
	}
	link(serviceID, queueID, "")
	link(queueID, workerID, "")
	link(serviceID, workerID, "horizontal")
	link(queueID, storeID, "vertical")
	link(storeID, busID, "")

	return d
}
