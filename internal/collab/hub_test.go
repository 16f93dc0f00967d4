package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/anchors/internal/diagram"
)

const testDiagram = "diag_test"

func loadTestDiagram(id string) (*diagram.Diagram, error) {
	if id != testDiagram {
		return nil, fmt.Errorf("%w: %s", diagram.ErrNotFound, id)
	}
	d := diagram.NewEmptyDiagram(id, "Test")
	for id, x := range map[string]float64{"a": 0, "b": 300} {
		d.Nodes[id] = diagram.Node{
			ID:        id,
			Type:      diagram.NodeTypeShapeRect,
			Transform: diagram.At(x, 0),
			Visible:   true,
			Data:      diagram.RectData(100, 100),
		}
	}
	d.Connections["c1"] = diagram.Connection{ID: "c1", From: "a", To: "b"}
	return d, nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(loadTestDiagram, nil, StateOptions{})
	t.Cleanup(func() {
		for _, st := range h.states {
			st.Close()
		}
	})
	return h
}

// drain returns every message queued for c.
func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func types(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func join(t *testing.T, h *Hub, clientID string) *Client {
	t.Helper()
	c := NewClient(h, nil, clientID, "user "+clientID, testDiagram)
	h.addClient(c)
	return c
}

func submit(t *testing.T, h *Hub, c *Client, op Operation) {
	t.Helper()
	payload, err := json.Marshal(OperationSubmitPayload{Operation: op})
	require.NoError(t, err)
	h.handleMessage(c, &Message{Type: TypeOpSubmit, Payload: payload})
}

func TestHubJoin(t *testing.T) {
	h := newTestHub(t)

	alice := join(t, h, "alice")
	msgs := drain(t, alice)
	require.Equal(t, []string{TypeWelcome, TypeDocSync, TypePresenceState}, types(msgs))

	var sync DocSyncPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &sync))
	assert.Len(t, sync.Diagram.Nodes, 2)
	assert.Len(t, sync.Positions, 2)
	assert.Zero(t, sync.ServerSeq)

	bob := join(t, h, "bob")
	assert.Len(t, drain(t, bob), 3)
	msgs = drain(t, alice)
	require.Equal(t, []string{TypePresenceJoin}, types(msgs))
	assert.Equal(t, "bob", msgs[0].ClientID)
}

func TestHubRejectsUnknownDiagram(t *testing.T) {
	h := newTestHub(t)
	c := NewClient(h, nil, "alice", "alice", "diag_missing")
	h.addClient(c)

	msgs := drain(t, c)
	require.Equal(t, []string{TypeError}, types(msgs))
	_, ok := <-c.send
	assert.False(t, ok)

	_, err := h.State("diag_missing")
	assert.ErrorIs(t, err, diagram.ErrNotFound)
}

func TestHubOperationBroadcast(t *testing.T) {
	h := newTestHub(t)
	alice, bob := join(t, h, "alice"), join(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	submit(t, h, alice, Operation{ID: "op1", Type: OpNodeTransform, NodeID: "b", Transform: json.RawMessage(`{"y": 200}`)})

	msgs := drain(t, alice)
	require.Equal(t, []string{TypeAnchorPositions, TypeOpAck}, types(msgs))
	var ack OperationAckPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &ack))
	assert.Equal(t, "op1", ack.OperationID)
	assert.Equal(t, int64(1), ack.ServerSeq)

	msgs = drain(t, bob)
	require.Equal(t, []string{TypeOpBroadcast, TypeAnchorPositions}, types(msgs))
	var broadcast OperationBroadcastPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &broadcast))
	assert.Equal(t, "alice", broadcast.ClientID)
	assert.Equal(t, OpNodeTransform, broadcast.Operation.Type)

	var positions AnchorPositionsPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &positions))
	assert.Equal(t, int64(1), positions.ServerSeq)
	assert.Len(t, positions.Positions, 2)
}

func TestHubOperationNack(t *testing.T) {
	h := newTestHub(t)
	alice, bob := join(t, h, "alice"), join(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	submit(t, h, alice, Operation{ID: "op1", Type: OpNodeDelete, NodeID: "nope"})

	msgs := drain(t, alice)
	require.Equal(t, []string{TypeOpNack}, types(msgs))
	var nack OperationNackPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &nack))
	assert.Equal(t, "op1", nack.OperationID)
	assert.Contains(t, nack.Reason, "nope")
	assert.Empty(t, drain(t, bob))

	h.handleMessage(alice, &Message{Type: TypeOpSubmit, Payload: json.RawMessage(`[]`)})
	assert.Equal(t, []string{TypeError}, types(drain(t, alice)))
}

func TestHubRejectedOperationStillSendsPositions(t *testing.T) {
	h := newTestHub(t)
	alice, bob := join(t, h, "alice"), join(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	// Move b behind the operation log's back so the next operation drains
	// position changes it did not cause.
	st, err := h.State(testDiagram)
	require.NoError(t, err)
	st.nodes["b"].node.SetTransform(diagram.At(300, 200).Matrix())

	submit(t, h, alice, Operation{ID: "op1", Type: OpNodeDelete, NodeID: "nope"})

	msgs := drain(t, alice)
	require.Equal(t, []string{TypeAnchorPositions, TypeOpNack}, types(msgs))
	var positions AnchorPositionsPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &positions))
	assert.Zero(t, positions.ServerSeq, "rejected operations do not advance the sequence")
	assert.Len(t, positions.Positions, 2)

	require.Equal(t, []string{TypeAnchorPositions}, types(drain(t, bob)))

	// Nothing is pending any more.
	submit(t, h, alice, Operation{ID: "op2", Type: OpNodeDelete, NodeID: "nope"})
	assert.Equal(t, []string{TypeOpNack}, types(drain(t, alice)))
	assert.Empty(t, drain(t, bob))
}

func TestHubPresence(t *testing.T) {
	h := newTestHub(t)
	alice, bob := join(t, h, "alice"), join(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	h.handleMessage(bob, &Message{Type: TypePresenceUpdate, Payload: json.RawMessage(`{"selection": ["b", "c1", "a"]}`)})
	msgs := drain(t, alice)
	require.Equal(t, []string{TypePresenceUpdate}, types(msgs))
	var p PresencePayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &p))
	assert.Equal(t, "user bob", p.Name)
	assert.Empty(t, drain(t, bob))

	// Deleting b removes it and its connection from every selection.
	_, err := h.Submit(testDiagram, Operation{Type: OpNodeDelete, NodeID: "b"}, "")
	require.NoError(t, err)
	msgs = drain(t, bob)
	require.Equal(t, []string{TypeOpBroadcast, TypeAnchorPositions, TypePresenceState}, types(msgs))
	var state PresenceStatePayload
	require.NoError(t, json.Unmarshal(msgs[2].Payload, &state))
	assert.Equal(t, []string{"a"}, state.Presences["bob"].Selection)

	h.removeClient(bob)
	msgs = drain(t, alice)
	assert.Contains(t, types(msgs), TypePresenceLeave)
	assert.NotContains(t, h.rooms[testDiagram].presence.GetAll(), "bob")

	bob.Send(&Message{Type: TypeError})
	h.removeClient(bob)
}

func TestHubRun(t *testing.T) {
	h := NewHub(loadTestDiagram, nil, StateOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := NewClient(h, nil, "alice", "alice", testDiagram)
	h.Register(c)
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, TypeWelcome, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no welcome message")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	// Registration after shutdown must not block.
	h.Register(NewClient(h, nil, "bob", "bob", testDiagram))
	h.Unregister(c)
	assert.Empty(t, h.states)
}

func TestPresencePrune(t *testing.T) {
	pm := NewPresenceManager()
	pm.Update("alice", &PresencePayload{Selection: []string{"a", "b"}})
	pm.Update("bob", &PresencePayload{Selection: []string{"c"}})

	assert.False(t, pm.Prune(nil))
	assert.False(t, pm.Prune([]string{"z"}))
	assert.True(t, pm.Prune([]string{"b", "c"}))

	all := pm.GetAll()
	assert.Equal(t, []string{"a"}, all["alice"].Selection)
	assert.Empty(t, all["bob"].Selection)
}

func TestHubSavesWhenRoomEmpties(t *testing.T) {
	var saved []*diagram.Diagram
	h := NewHub(loadTestDiagram, func(d *diagram.Diagram) error {
		saved = append(saved, d)
		return nil
	}, StateOptions{})
	t.Cleanup(func() {
		for _, st := range h.states {
			st.Close()
		}
	})

	alice := join(t, h, "alice")
	h.removeClient(alice)
	assert.Empty(t, saved, "unchanged diagrams are not saved")

	alice = join(t, h, "alice")
	_, err := h.Submit(testDiagram, Operation{Type: OpConnectionDelete, ConnectionID: "c1"}, "")
	require.NoError(t, err)
	h.removeClient(alice)

	require.Len(t, saved, 1)
	assert.Equal(t, 2, saved[0].Version)
	assert.Empty(t, saved[0].Connections)
}
