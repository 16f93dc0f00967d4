package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inamate/anchors/internal/diagram"
	"github.com/inamate/anchors/internal/typeid"
)

// Loader returns the stored diagram with the given id, or an error wrapping
// diagram.ErrNotFound.
type Loader func(diagramID string) (*diagram.Diagram, error)

// Saver persists a snapshot of a live diagram.
type Saver func(d *diagram.Diagram) error

type Room struct {
	diagramID string
	clients   map[string]*Client // clientID -> client
	presence  *PresenceManager
}

func NewRoom(diagramID string) *Room {
	return &Room{
		diagramID: diagramID,
		clients:   make(map[string]*Client),
		presence:  NewPresenceManager(),
	}
}

type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*Room          // diagramID -> room
	states map[string]*DiagramState // diagramID -> live state
	load   Loader
	save   Saver
	opts   StateOptions
	logger *slog.Logger

	// opMu keeps op.broadcast and anchor.positions in server sequence order.
	opMu sync.Mutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(load Loader, save Saver, opts StateOptions) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		rooms:      make(map[string]*Room),
		states:     make(map[string]*DiagramState),
		load:       load,
		save:       save,
		opts:       opts,
		logger:     opts.Logger.With("component", "hub"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves client registrations until ctx is done, then releases every
// diagram state.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, st := range h.states {
		h.persist(st)
		st.Close()
		delete(h.states, id)
	}
	for id, room := range h.rooms {
		for _, c := range room.clients {
			c.close()
		}
		delete(h.rooms, id)
	}
	connectedClients.Set(0)
}

// persist saves the state when it changed since it was loaded.
func (h *Hub) persist(st *DiagramState) {
	if h.save == nil || st.ServerSeq() == 0 {
		return
	}
	doc, err := st.Snapshot()
	if err == nil {
		err = h.save(doc)
	}
	if err != nil {
		h.logger.Error("save diagram", "error", err)
		return
	}
	h.logger.Info("diagram saved", "diagram", doc.ID, "version", doc.Version)
}

// State returns the live state of a diagram, loading it on first use.
func (h *Hub) State(diagramID string) (*DiagramState, error) {
	h.mu.RLock()
	st, ok := h.states[diagramID]
	h.mu.RUnlock()
	if ok {
		return st, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.states[diagramID]; ok {
		return st, nil
	}
	doc, err := h.load(diagramID)
	if err != nil {
		return nil, err
	}
	st, err = NewDiagramState(doc, h.opts)
	if err != nil {
		return nil, fmt.Errorf("build diagram %s: %w", diagramID, err)
	}
	h.states[diagramID] = st
	h.logger.Info("diagram loaded", "diagram", diagramID, "nodes", len(doc.Nodes), "connections", len(doc.Connections))
	return st, nil
}

// Submit applies op to a diagram and broadcasts the operation and the
// resulting endpoint positions to the room. senderID is excluded from the
// operation broadcast; it is empty for operations that did not come from a
// connected client.
func (h *Hub) Submit(diagramID string, op Operation, senderID string) (Result, error) {
	st, err := h.State(diagramID)
	if err != nil {
		return Result{}, err
	}
	if op.ID == "" {
		op.ID = typeid.NewOpID()
	}
	if op.Timestamp == 0 {
		op.Timestamp = GetServerTimestamp()
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	res, err := st.ApplyOperation(op)
	if err != nil {
		// Whatever the rejected operation already moved is still sent.
		if perr := h.broadcastPositions(diagramID, res.Seq, res.Positions); perr != nil {
			h.logger.Error("broadcast positions", "diagram", diagramID, "error", perr)
		}
		return res, err
	}

	payload, err := json.Marshal(OperationBroadcastPayload{
		Operation: res.Operation,
		ClientID:  senderID,
		ServerSeq: res.Seq,
	})
	if err != nil {
		return res, fmt.Errorf("marshal broadcast: %w", err)
	}
	h.broadcastToRoom(diagramID, &Message{
		Type:      TypeOpBroadcast,
		DiagramID: diagramID,
		Seq:       res.Seq,
		Payload:   payload,
	}, senderID)

	if err := h.broadcastPositions(diagramID, res.Seq, res.Positions); err != nil {
		return res, err
	}

	h.pruneSelections(diagramID, removedIDs(res.Operation))
	return res, nil
}

// broadcastPositions sends changed endpoint positions to every client of the
// room. Nothing is sent for an empty change set.
func (h *Hub) broadcastPositions(diagramID string, seq int64, positions []EndpointPosition) error {
	if len(positions) == 0 {
		return nil
	}
	payload, err := json.Marshal(AnchorPositionsPayload{ServerSeq: seq, Positions: positions})
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	h.broadcastToRoom(diagramID, &Message{
		Type:      TypeAnchorPositions,
		DiagramID: diagramID,
		Seq:       seq,
		Payload:   payload,
	}, "")
	positionBroadcasts.Inc()
	return nil
}

// removedIDs lists the diagram elements an applied operation deleted.
func removedIDs(op Operation) []string {
	switch op.Type {
	case OpNodeDelete:
		return append([]string{op.NodeID}, op.Removed...)
	case OpConnectionDelete:
		return []string{op.ConnectionID}
	}
	return nil
}

func (h *Hub) pruneSelections(diagramID string, ids []string) {
	h.mu.RLock()
	room, ok := h.rooms[diagramID]
	h.mu.RUnlock()
	if !ok || !room.presence.Prune(ids) {
		return
	}
	if msg := room.presence.StateMessage(diagramID); msg != nil {
		h.broadcastToRoom(diagramID, msg, "")
	}
}

func (h *Hub) addClient(client *Client) {
	st, err := h.State(client.DiagramID)
	if err != nil {
		h.logger.Warn("client rejected", "client", client.ClientID, "diagram", client.DiagramID, "error", err)
		client.Send(errorMessage(client.DiagramID, err))
		client.close()
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[client.DiagramID]
	if !ok {
		room = NewRoom(client.DiagramID)
		h.rooms[client.DiagramID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()
	connectedClients.Inc()

	welcome, _ := json.Marshal(WelcomePayload{ClientID: client.ClientID, DiagramID: client.DiagramID})
	client.Send(&Message{Type: TypeWelcome, DiagramID: client.DiagramID, ClientID: client.ClientID, Payload: welcome})

	// Hold opMu so no operation lands between the snapshot and the client
	// joining the broadcast set.
	h.opMu.Lock()
	doc, err := st.Snapshot()
	if err == nil {
		var data []byte
		data, err = json.Marshal(DocSyncPayload{Diagram: doc, Positions: st.Positions(), ServerSeq: st.ServerSeq()})
		if err == nil {
			client.Send(&Message{Type: TypeDocSync, DiagramID: client.DiagramID, Payload: data})
		}
	}
	h.opMu.Unlock()
	if err != nil {
		h.logger.Error("doc sync", "client", client.ClientID, "diagram", client.DiagramID, "error", err)
	}

	// Send current presence state to new client
	if stateMsg := room.presence.StateMessage(client.DiagramID); stateMsg != nil {
		client.Send(stateMsg)
	}

	// Broadcast join to other clients
	joinPayload, _ := json.Marshal(PresenceJoinPayload{
		ClientID: client.ClientID,
		Name:     client.Name,
	})
	joinMsg := &Message{
		Type:      TypePresenceJoin,
		DiagramID: client.DiagramID,
		ClientID:  client.ClientID,
		Payload:   joinPayload,
	}
	h.broadcastToRoom(client.DiagramID, joinMsg, client.ClientID)

	h.logger.Info("client joined", "client", client.ClientID, "diagram", client.DiagramID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.DiagramID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	client.close()
	room.presence.Remove(client.ClientID)

	empty := len(room.clients) == 0
	if empty {
		delete(h.rooms, client.DiagramID)
	}
	st := h.states[client.DiagramID]
	h.mu.Unlock()
	connectedClients.Dec()

	if empty && st != nil {
		h.persist(st)
	}

	// Broadcast leave to remaining clients
	leavePayload, _ := json.Marshal(PresenceLeavePayload{
		ClientID: client.ClientID,
	})
	leaveMsg := &Message{
		Type:      TypePresenceLeave,
		DiagramID: client.DiagramID,
		ClientID:  client.ClientID,
		Payload:   leavePayload,
	}
	h.broadcastToRoom(client.DiagramID, leaveMsg, "")

	h.logger.Info("client left", "client", client.ClientID, "diagram", client.DiagramID)
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case TypeOpSubmit:
		h.handleOperationSubmit(sender, msg)
	default:
		h.logger.Warn("unknown message type", "type", msg.Type, "client", sender.ClientID)
		sender.Send(errorMessage(sender.DiagramID, fmt.Errorf("%w: %q", ErrUnsupportedMessage, msg.Type)))
	}
}

func (h *Hub) handleOperationSubmit(sender *Client, msg *Message) {
	var submit OperationSubmitPayload
	if err := json.Unmarshal(msg.Payload, &submit); err != nil {
		h.logger.Warn("invalid operation payload", "error", err, "client", sender.ClientID)
		sender.Send(errorMessage(sender.DiagramID, fmt.Errorf("%w: %w", ErrInvalidOperation, err)))
		return
	}

	op := submit.Operation
	if op.ID == "" {
		op.ID = typeid.NewOpID()
	}
	res, err := h.Submit(sender.DiagramID, op, sender.ClientID)
	if err != nil {
		nack, _ := json.Marshal(OperationNackPayload{OperationID: op.ID, Reason: err.Error()})
		sender.Send(&Message{Type: TypeOpNack, DiagramID: sender.DiagramID, Payload: nack})
		if !errors.Is(err, ErrInvalidOperation) && !errors.Is(err, ErrNodeNotFound) && !errors.Is(err, ErrConnectionNotFound) {
			h.logger.Warn("operation failed", "op", op.ID, "type", op.Type, "error", err)
		}
		return
	}

	ack, _ := json.Marshal(OperationAckPayload{
		OperationID:     op.ID,
		ServerSeq:       res.Seq,
		ServerTimestamp: GetServerTimestamp(),
	})
	sender.Send(&Message{Type: TypeOpAck, DiagramID: sender.DiagramID, Seq: res.Seq, Payload: ack})
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		h.logger.Warn("invalid presence payload", "error", err)
		return
	}

	presence.Name = sender.Name

	h.mu.RLock()
	room, ok := h.rooms[sender.DiagramID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	room.presence.Update(sender.ClientID, &presence)

	// Broadcast to other clients in room
	outPayload, _ := json.Marshal(presence)
	outMsg := &Message{
		Type:      TypePresenceUpdate,
		DiagramID: sender.DiagramID,
		ClientID:  sender.ClientID,
		Payload:   outPayload,
	}
	h.broadcastToRoom(sender.DiagramID, outMsg, sender.ClientID)
}

func (h *Hub) broadcastToRoom(diagramID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[diagramID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}

func errorMessage(diagramID string, err error) *Message {
	payload, _ := json.Marshal(ErrorPayload{Message: err.Error()})
	return &Message{Type: TypeError, DiagramID: diagramID, Payload: payload}
}
