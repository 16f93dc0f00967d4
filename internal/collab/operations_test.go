package collab_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/anchors/internal/collab"
	"github.com/inamate/anchors/internal/diagram"
	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/typeid"
)

const delta = 1e-6

func box(id string, x, y, w, h float64) diagram.Node {
	return diagram.Node{
		ID:        id,
		Type:      diagram.NodeTypeShapeRect,
		Transform: diagram.At(x, y),
		Visible:   true,
		Data:      diagram.RectData(w, h),
	}
}

// twoBoxes joins a square at the origin to a square 200 units to its right.
func twoBoxes() *diagram.Diagram {
	d := diagram.NewEmptyDiagram("diag_test", "Test")
	d.Nodes["a"] = box("a", 0, 0, 100, 100)
	d.Nodes["b"] = box("b", 300, 0, 100, 100)
	d.Connections["c1"] = diagram.Connection{ID: "c1", From: "a", To: "b"}
	return d
}

func newState(t *testing.T, d *diagram.Diagram) *collab.DiagramState {
	t.Helper()
	ds, err := collab.NewDiagramState(d, collab.StateOptions{})
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	return ds
}

func position(t *testing.T, ds *collab.DiagramState, connID, role string) geometry.Point {
	t.Helper()
	p, ok, err := ds.Position(connID, role)
	require.NoError(t, err)
	require.True(t, ok, "%s %s not computed", connID, role)
	return p
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNewDiagramStateComputesEndpoints(t *testing.T) {
	ds := newState(t, twoBoxes())

	assert.Equal(t, geometry.Pt(100, 50), position(t, ds, "c1", collab.RoleStart))
	assert.Equal(t, geometry.Pt(300, 50), position(t, ds, "c1", collab.RoleEnd))

	positions := ds.Positions()
	require.Len(t, positions, 2)
	assert.Equal(t, collab.EndpointPosition{ConnectionID: "c1", Role: collab.RoleEnd, NodeID: "b", X: 300, Y: 50}, positions[0])
	assert.Equal(t, collab.EndpointPosition{ConnectionID: "c1", Role: collab.RoleStart, NodeID: "a", X: 100, Y: 50}, positions[1])
	assert.Zero(t, ds.ServerSeq())
}

func TestNewDiagramStateRejectsInvalidDiagrams(t *testing.T) {
	d := twoBoxes()
	d.Connections["c2"] = diagram.Connection{ID: "c2", From: "a", To: "missing"}
	_, err := collab.NewDiagramState(d, collab.StateOptions{})
	assert.ErrorIs(t, err, diagram.ErrDanglingConnection)

	_, err = collab.NewDiagramState(twoBoxes(), collab.StateOptions{DefaultStrategy: "magnet"})
	assert.ErrorIs(t, err, collab.ErrUnknownStrategy)
}

func TestNodeTransformMovesBothEnds(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{
		ID:        "op1",
		Type:      collab.OpNodeTransform,
		NodeID:    "b",
		Transform: json.RawMessage(`{"y": 200}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Seq)

	require.Len(t, res.Positions, 2)
	end, start := res.Positions[0], res.Positions[1]
	assert.Equal(t, collab.RoleEnd, end.Role)
	assert.InDelta(t, 300, end.X, delta)
	assert.InDelta(t, 250-100.0/6*2, end.Y, delta)
	assert.Equal(t, collab.RoleStart, start.Role)
	assert.InDelta(t, 100, start.X, delta)
	assert.InDelta(t, 50+100.0/6*2, start.Y, delta)

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
	assert.Equal(t, 200.0, snap.Nodes["b"].Transform.Y)
	assert.Equal(t, 300.0, snap.Nodes["b"].Transform.X)
}

func TestNodeTransformWithoutChangeIsQuiet(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{
		Type:      collab.OpNodeTransform,
		NodeID:    "b",
		Transform: json.RawMessage(`{"x": 300}`),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Positions)
}

func TestNodeShape(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{
		Type:   collab.OpNodeShape,
		NodeID: "b",
		Shape:  raw(t, collab.ShapePayload{Data: diagram.RectData(100, 200)}),
	})
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)

	start := position(t, ds, "c1", collab.RoleStart)
	assert.InDelta(t, 100, start.X, delta)
	assert.InDelta(t, 50+50.0/6, start.Y, delta)
	end := position(t, ds, "c1", collab.RoleEnd)
	assert.InDelta(t, 300, end.X, delta)
	assert.InDelta(t, 100-50.0/6, end.Y, delta)

	_, err = ds.ApplyOperation(collab.Operation{
		Type:   collab.OpNodeShape,
		NodeID: "b",
		Shape:  raw(t, collab.ShapePayload{Type: diagram.NodeTypePolygon, Data: json.RawMessage(`{"points": []}`)}),
	})
	assert.ErrorIs(t, err, collab.ErrInvalidOperation)
}

func TestNodeDeleteCascades(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{Type: collab.OpNodeDelete, NodeID: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, res.Operation.Removed)

	require.Len(t, res.Positions, 2)
	for _, p := range res.Positions {
		assert.True(t, p.Removed, "%s %s", p.ConnectionID, p.Role)
	}
	assert.Empty(t, ds.Positions())

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.NotContains(t, snap.Nodes, "b")
	assert.Empty(t, snap.Connections)

	_, _, err = ds.Position("c1", collab.RoleStart)
	assert.ErrorIs(t, err, collab.ErrConnectionNotFound)
}

func TestNodeCreateAndConnect(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{
		Type: collab.OpNodeCreate,
		Node: raw(t, diagram.Node{Type: diagram.NodeTypeShapeRect, Transform: diagram.Transform{Y: 300}, Visible: true, Data: diagram.RectData(100, 100)}),
	})
	require.NoError(t, err)
	created := res.Operation.NodeID
	require.NotEmpty(t, created)
	assert.Empty(t, res.Positions)

	res, err = ds.ApplyOperation(collab.Operation{
		Type:       collab.OpConnectionCreate,
		Connection: raw(t, diagram.Connection{ID: "c2", From: "a", To: created}),
	})
	require.NoError(t, err)
	assert.Equal(t, "c2", res.Operation.ConnectionID)
	assert.Len(t, res.Positions, 2)
	assert.Equal(t, geometry.Pt(50, 100), position(t, ds, "c2", collab.RoleStart))
	assert.Equal(t, geometry.Pt(50, 300), position(t, ds, "c2", collab.RoleEnd))

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Nodes[created].Transform.SX)
	assert.Equal(t, int64(2), ds.ServerSeq())
}

func TestNodeCreateChecksGeneratedIDs(t *testing.T) {
	ds := newState(t, twoBoxes())
	create := func(id string) error {
		n := box(id, 0, 300, 100, 100)
		_, err := ds.ApplyOperation(collab.Operation{Type: collab.OpNodeCreate, Node: raw(t, n)})
		return err
	}

	assert.ErrorIs(t, create("node_xyz"), collab.ErrInvalidOperation)
	assert.ErrorIs(t, create(typeid.NewConnectionID()), collab.ErrInvalidOperation)
	assert.Zero(t, ds.ServerSeq())

	id := typeid.NewNodeID()
	require.NoError(t, create(id))
	require.NoError(t, create("plain"))

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, snap.Nodes, id)
	assert.Contains(t, snap.Nodes, "plain")
}

func TestConnectionCreateErrors(t *testing.T) {
	ds := newState(t, twoBoxes())

	tests := []struct {
		name string
		conn diagram.Connection
		err  error
	}{
		{"missing node", diagram.Connection{ID: "c2", From: "a", To: "nope"}, collab.ErrNodeNotFound},
		{"id taken by node", diagram.Connection{ID: "a", From: "a", To: "b"}, collab.ErrInvalidOperation},
		{"id taken by connection", diagram.Connection{ID: "c1", From: "a", To: "b"}, collab.ErrInvalidOperation},
		{"bad orientation", diagram.Connection{ID: "c3", From: "a", To: "b", Orientation: "diagonal"}, collab.ErrInvalidOperation},
		{"malformed generated id", diagram.Connection{ID: "conn_xyz", From: "a", To: "b"}, collab.ErrInvalidOperation},
		{"node id for a connection", diagram.Connection{ID: typeid.NewNodeID(), From: "a", To: "b"}, collab.ErrInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ds.ApplyOperation(collab.Operation{Type: collab.OpConnectionCreate, Connection: raw(t, tt.conn)})
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Zero(t, ds.ServerSeq())
	assert.Len(t, ds.Positions(), 2)
}

func TestConnectionDelete(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{Type: collab.OpConnectionDelete, ConnectionID: "c1"})
	require.NoError(t, err)
	assert.Len(t, res.Positions, 2)
	assert.Empty(t, ds.Positions())

	_, err = ds.ApplyOperation(collab.Operation{Type: collab.OpConnectionDelete, ConnectionID: "c1"})
	assert.ErrorIs(t, err, collab.ErrConnectionNotFound)
}

func TestNodeVisibility(t *testing.T) {
	ds := newState(t, twoBoxes())
	hide, show := false, true

	_, err := ds.ApplyOperation(collab.Operation{Type: collab.OpNodeVisibility, NodeID: "b", Visible: &hide})
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(300, 50), position(t, ds, "c1", collab.RoleEnd))

	// The hidden end keeps its last position while the visible end follows.
	res, err := ds.ApplyOperation(collab.Operation{
		Type:      collab.OpNodeTransform,
		NodeID:    "b",
		Transform: json.RawMessage(`{"y": 200}`),
	})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, collab.RoleStart, res.Positions[0].Role)
	assert.Equal(t, geometry.Pt(300, 50), position(t, ds, "c1", collab.RoleEnd))

	res, err = ds.ApplyOperation(collab.Operation{Type: collab.OpNodeVisibility, NodeID: "b", Visible: &show})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.InDelta(t, 250-100.0/6*2, position(t, ds, "c1", collab.RoleEnd).Y, delta)

	_, err = ds.ApplyOperation(collab.Operation{Type: collab.OpNodeVisibility, NodeID: "b"})
	assert.ErrorIs(t, err, collab.ErrInvalidOperation)
}

func TestNodeStrategy(t *testing.T) {
	ds := newState(t, twoBoxes())

	res, err := ds.ApplyOperation(collab.Operation{Type: collab.OpNodeStrategy, NodeID: "a", Strategy: "reference-point"})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, geometry.Pt(50, 50), position(t, ds, "c1", collab.RoleStart))

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "reference-point", snap.Nodes["a"].Strategy)

	_, err = ds.ApplyOperation(collab.Operation{Type: collab.OpNodeStrategy, NodeID: "a", Strategy: "magnet"})
	assert.ErrorIs(t, err, collab.ErrUnknownStrategy)
}

func TestConnectionOrientation(t *testing.T) {
	d := diagram.NewEmptyDiagram("diag_test", "Test")
	a := box("a", 0, 0, 100, 100)
	a.Strategy = "orthogonal"
	d.Nodes["a"] = a
	d.Nodes["b"] = box("b", 60, 60, 20, 20)
	d.Connections["c1"] = diagram.Connection{ID: "c1", From: "a", To: "b"}
	ds := newState(t, d)

	assert.Equal(t, geometry.Pt(100, 70), position(t, ds, "c1", collab.RoleStart))
	assert.Equal(t, geometry.Pt(60, 60), position(t, ds, "c1", collab.RoleEnd))

	res, err := ds.ApplyOperation(collab.Operation{Type: collab.OpConnectionOrientation, ConnectionID: "c1", Orientation: "vertical"})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, geometry.Pt(70, 100), position(t, ds, "c1", collab.RoleStart))

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "vertical", snap.Connections["c1"].Orientation)

	_, err = ds.ApplyOperation(collab.Operation{Type: collab.OpConnectionOrientation, ConnectionID: "c1", Orientation: "sideways"})
	assert.ErrorIs(t, err, collab.ErrInvalidOperation)
}

func TestApplyOperationErrors(t *testing.T) {
	ds := newState(t, twoBoxes())

	tests := []struct {
		name string
		op   collab.Operation
		err  error
	}{
		{"unknown type", collab.Operation{Type: "node.spin"}, collab.ErrUnknownOperation},
		{"unknown node", collab.Operation{Type: collab.OpNodeDelete, NodeID: "zzz"}, collab.ErrNodeNotFound},
		{"singular transform", collab.Operation{Type: collab.OpNodeTransform, NodeID: "a", Transform: json.RawMessage(`{"sx": 0}`)}, collab.ErrInvalidOperation},
		{"malformed transform", collab.Operation{Type: collab.OpNodeTransform, NodeID: "a", Transform: json.RawMessage(`[1]`)}, collab.ErrInvalidOperation},
		{"malformed node", collab.Operation{Type: collab.OpNodeCreate, Node: json.RawMessage(`"x"`)}, collab.ErrInvalidOperation},
		{"unknown node type", collab.Operation{Type: collab.OpNodeCreate, Node: json.RawMessage(`{"id": "n", "type": "Blob"}`)}, collab.ErrInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ds.ApplyOperation(tt.op)
			require.ErrorIs(t, err, tt.err)
			assert.Zero(t, res.Seq)
		})
	}

	assert.Zero(t, ds.ServerSeq())
	assert.Equal(t, geometry.Pt(100, 50), position(t, ds, "c1", collab.RoleStart))
}

func TestSampleDiagramState(t *testing.T) {
	ds := newState(t, diagram.NewSampleDiagram("diag_sample"))

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Len(t, ds.Positions(), 2*len(snap.Connections))
	for _, p := range ds.Positions() {
		assert.True(t, geometry.Pt(p.X, p.Y).IsFinite(), "%s %s", p.ConnectionID, p.Role)
	}
}
