package collab

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/inamate/anchors/internal/diagram"
	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/typeid"
)

// Handler serves the HTTP and websocket endpoints of the hub's diagrams.
type Handler struct {
	hub            *Hub
	originPatterns []string
}

func NewHandler(hub *Hub, originPatterns []string) *Handler {
	return &Handler{hub: hub, originPatterns: originPatterns}
}

type diagramResponse struct {
	Diagram   *diagram.Diagram   `json:"diagram"`
	Positions []EndpointPosition `json:"positions"`
	ServerSeq int64              `json:"serverSeq"`
}

type opsRequest struct {
	Operations []Operation `json:"operations"`
}

type opResult struct {
	OperationID string             `json:"operationId"`
	ServerSeq   int64              `json:"serverSeq,omitempty"`
	Positions   []EndpointPosition `json:"positions,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.hub.State(mux.Vars(r)["diagramId"])
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, err := st.Snapshot()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, diagramResponse{Diagram: doc, Positions: st.Positions(), ServerSeq: st.ServerSeq()})
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	st, err := h.hub.State(mux.Vars(r)["diagramId"])
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AnchorPositionsPayload{ServerSeq: st.ServerSeq(), Positions: st.Positions()})
}

// HitTest reports the node under the scene point given by the x and y query
// parameters.
func (h *Handler) HitTest(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "x and y are required"})
		return
	}

	st, err := h.hub.State(mux.Vars(r)["diagramId"])
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"nodeId": st.HitTest(geometry.Pt(x, y))})
}

// Bounds returns the scene bounds of the comma separated node ids.
func (h *Handler) Bounds(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")

	st, err := h.hub.State(mux.Vars(r)["diagramId"])
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, st.SelectionBounds(ids))
}

// SubmitOps applies operations in order and stops at the first rejected one.
func (h *Handler) SubmitOps(w http.ResponseWriter, r *http.Request) {
	diagramID := mux.Vars(r)["diagramId"]

	var req opsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Operations) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "operations are required"})
		return
	}

	results := make([]opResult, 0, len(req.Operations))
	for _, op := range req.Operations {
		if op.ID == "" {
			op.ID = typeid.NewOpID()
		}
		res, err := h.hub.Submit(diagramID, op, "")
		if errors.Is(err, diagram.ErrNotFound) {
			handleServiceError(w, err)
			return
		}
		if err != nil {
			results = append(results, opResult{OperationID: op.ID, Error: err.Error()})
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"results": results})
			return
		}
		results = append(results, opResult{OperationID: op.ID, ServerSeq: res.Seq, Positions: res.Positions})
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ServeWS upgrades the request and runs the client's pumps until the
// connection ends.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	diagramID := mux.Vars(r)["diagramId"]
	if _, err := h.hub.State(diagramID); err != nil {
		handleServiceError(w, err)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Anonymous"
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.hub.logger.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, uuid.New().String(), name, diagramID)
	h.hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, diagram.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
