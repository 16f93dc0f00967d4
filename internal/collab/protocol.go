package collab

import (
	"encoding/json"

	"github.com/inamate/anchors/internal/diagram"
	"github.com/inamate/anchors/internal/geometry"
)

type Message struct {
	Type      string          `json:"type"`
	DiagramID string          `json:"diagramId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Cursor    *geometry.Point `json:"cursor,omitempty"`
	Selection []string        `json:"selection,omitempty"`
	Name      string          `json:"name,omitempty"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
}

type PresenceLeavePayload struct {
	ClientID string `json:"clientId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type WelcomePayload struct {
	ClientID  string `json:"clientId"`
	DiagramID string `json:"diagramId"`
}

// DocSyncPayload carries the full diagram and every known endpoint position.
type DocSyncPayload struct {
	Diagram   *diagram.Diagram   `json:"diagram"`
	Positions []EndpointPosition `json:"positions"`
	ServerSeq int64              `json:"serverSeq"`
}

// EndpointPosition is where one end of a connection attaches, in scene
// coordinates. Removed marks an endpoint whose position was dropped.
type EndpointPosition struct {
	ConnectionID string  `json:"connectionId"`
	Role         string  `json:"role"`
	NodeID       string  `json:"nodeId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Removed      bool    `json:"removed,omitempty"`
}

// AnchorPositionsPayload is the payload of anchor.positions messages: the
// endpoints whose positions changed while applying one operation.
type AnchorPositionsPayload struct {
	ServerSeq int64              `json:"serverSeq"`
	Positions []EndpointPosition `json:"positions"`
}

const (
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"
	TypeError          = "error"

	// Connection
	TypeWelcome = "welcome"

	// Document sync
	TypeDocSync = "doc.sync"

	// Operation message types
	TypeOpSubmit    = "op.submit"
	TypeOpAck       = "op.ack"
	TypeOpNack      = "op.nack"
	TypeOpBroadcast = "op.broadcast"

	// Anchor engine output
	TypeAnchorPositions = "anchor.positions"
)

// Operation types.
const (
	OpNodeCreate            = "node.create"
	OpNodeTransform         = "node.transform"
	OpNodeShape             = "node.shape"
	OpNodeDelete            = "node.delete"
	OpNodeVisibility        = "node.visibility"
	OpNodeStrategy          = "node.strategy"
	OpConnectionCreate      = "connection.create"
	OpConnectionDelete      = "connection.delete"
	OpConnectionOrientation = "connection.orientation"
)

// Connection endpoint roles.
const (
	RoleStart = "start"
	RoleEnd   = "end"
)

// Operation represents a diagram mutation
type Operation struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Timestamp    int64  `json:"timestamp"`
	ClientSeq    int64  `json:"clientSeq"`
	NodeID       string `json:"nodeId,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`

	// For node.create
	Node json.RawMessage `json:"node,omitempty"`

	// For node.transform
	Transform json.RawMessage `json:"transform,omitempty"`

	// For node.shape
	Shape json.RawMessage `json:"shape,omitempty"`

	// For node.visibility
	Visible *bool `json:"visible,omitempty"`

	// For node.strategy
	Strategy string `json:"strategy,omitempty"`

	// For connection.create
	Connection json.RawMessage `json:"connection,omitempty"`

	// For connection.orientation
	Orientation string `json:"orientation,omitempty"`

	// Filled in by the server for node.delete: the connections removed with
	// the node.
	Removed []string `json:"removed,omitempty"`
}

// ShapePayload is the shape of node.shape operations. An empty Type keeps
// the node's current type.
type ShapePayload struct {
	Type diagram.NodeType `json:"type,omitempty"`
	Data json.RawMessage  `json:"data"`
}

// OperationSubmitPayload is the payload for op.submit messages
type OperationSubmitPayload struct {
	Operation Operation `json:"operation"`
}

// OperationAckPayload is the payload for op.ack messages
type OperationAckPayload struct {
	OperationID     string `json:"operationId"`
	ServerSeq       int64  `json:"serverSeq"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

// OperationNackPayload is the payload for op.nack messages
type OperationNackPayload struct {
	OperationID string `json:"operationId"`
	Reason      string `json:"reason"`
}

// OperationBroadcastPayload is the payload for op.broadcast messages
type OperationBroadcastPayload struct {
	Operation Operation `json:"operation"`
	ClientID  string    `json:"clientId"`
	ServerSeq int64     `json:"serverSeq"`
}
