package collab_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/anchors/internal/collab"
	"github.com/inamate/anchors/internal/diagram"
	"github.com/inamate/anchors/internal/geometry"
)

func newTestServer(t *testing.T) (*httptest.Server, *diagram.Store) {
	t.Helper()
	store := diagram.NewStore()
	require.NoError(t, store.Save(twoBoxes()))

	hub := collab.NewHub(store.Load, store.Save, collab.StateOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	h := collab.NewHandler(hub, nil)
	r := mux.NewRouter()
	r.HandleFunc("/api/diagrams/{diagramId}", h.Get).Methods("GET")
	r.HandleFunc("/api/diagrams/{diagramId}/positions", h.Positions).Methods("GET")
	r.HandleFunc("/api/diagrams/{diagramId}/ops", h.SubmitOps).Methods("POST")
	r.HandleFunc("/api/diagrams/{diagramId}/hit", h.HitTest).Methods("GET")
	r.HandleFunc("/api/diagrams/{diagramId}/bounds", h.Bounds).Methods("GET")
	r.HandleFunc("/ws/diagram/{diagramId}", h.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, store
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHandlerGet(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/diagrams/diag_test")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Diagram   diagram.Diagram           `json:"diagram"`
		Positions []collab.EndpointPosition `json:"positions"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.Diagram.Nodes, 2)
	assert.Len(t, body.Positions, 2)

	resp, err = http.Get(srv.URL + "/api/diagrams/diag_nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerQueries(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/diagrams/diag_test/hit?x=350&y=20")
	require.NoError(t, err)
	var hit map[string]string
	decodeBody(t, resp, &hit)
	assert.Equal(t, "b", hit["nodeId"])

	resp, err = http.Get(srv.URL + "/api/diagrams/diag_test/hit?x=200")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/diagrams/diag_test/bounds?ids=a,b")
	require.NoError(t, err)
	var bounds geometry.Rect
	decodeBody(t, resp, &bounds)
	assert.Equal(t, geometry.Rect{Width: 400, Height: 100}, bounds)
}

func TestHandlerSubmitOps(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"operations": [
		{"id": "op1", "type": "node.transform", "nodeId": "b", "transform": {"y": 200}},
		{"id": "op2", "type": "node.delete", "nodeId": "zzz"},
		{"id": "op3", "type": "connection.delete", "connectionId": "c1"}
	]}`
	resp, err := http.Post(srv.URL+"/api/diagrams/diag_test/ops", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out struct {
		Results []struct {
			OperationID string                    `json:"operationId"`
			ServerSeq   int64                     `json:"serverSeq"`
			Positions   []collab.EndpointPosition `json:"positions"`
			Error       string                    `json:"error"`
		} `json:"results"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Results, 2)
	assert.Equal(t, int64(1), out.Results[0].ServerSeq)
	assert.Len(t, out.Results[0].Positions, 2)
	assert.Contains(t, out.Results[1].Error, "node not found")

	resp, err = http.Get(srv.URL + "/api/diagrams/diag_test/positions")
	require.NoError(t, err)
	var positions collab.AnchorPositionsPayload
	decodeBody(t, resp, &positions)
	assert.Equal(t, int64(1), positions.ServerSeq)
	assert.Len(t, positions.Positions, 2)

	resp, err = http.Post(srv.URL+"/api/diagrams/diag_test/ops", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/diagram/diag_test?name=alice"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() collab.Message {
		t.Helper()
		var msg collab.Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		return msg
	}

	welcome := read()
	require.Equal(t, collab.TypeWelcome, welcome.Type)
	_, err = uuid.Parse(welcome.ClientID)
	assert.NoError(t, err, "client id %q", welcome.ClientID)
	assert.Equal(t, collab.TypeDocSync, read().Type)
	assert.Equal(t, collab.TypePresenceState, read().Type)

	payload, err := json.Marshal(collab.OperationSubmitPayload{Operation: collab.Operation{
		ID:        "op1",
		Type:      collab.OpNodeTransform,
		NodeID:    "a",
		Transform: json.RawMessage(`{"x": -100}`),
	}})
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, collab.Message{Type: collab.TypeOpSubmit, Payload: payload}))

	msg := read()
	require.Equal(t, collab.TypeAnchorPositions, msg.Type)
	var positions collab.AnchorPositionsPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &positions))
	require.Len(t, positions.Positions, 1)
	assert.Equal(t, collab.RoleStart, positions.Positions[0].Role)
	assert.Equal(t, 0.0, positions.Positions[0].X)

	assert.Equal(t, collab.TypeOpAck, read().Type)

	resp, err := http.Get(srv.URL + "/ws/diagram/diag_nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
