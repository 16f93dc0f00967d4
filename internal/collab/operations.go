package collab

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/inamate/anchors/internal/anchor"
	"github.com/inamate/anchors/internal/diagram"
	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/observable"
	"github.com/inamate/anchors/internal/scene"
	"github.com/inamate/anchors/internal/typeid"
)

var _ anchor.Visual = (*scene.Node)(nil)

// StateOptions configures how a DiagramState builds its anchors.
type StateOptions struct {
	Epsilon         float64
	DefaultStrategy string
	Logger          *slog.Logger
}

func (o StateOptions) withDefaults() StateOptions {
	if o.Epsilon <= 0 {
		o.Epsilon = anchor.DefaultEpsilon
	}
	if o.DefaultStrategy == "" {
		o.DefaultStrategy = "chopbox"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result is the outcome of one applied operation. For a rejected operation
// Seq is the unchanged server sequence.
type Result struct {
	Seq       int64
	Operation Operation
	// Positions lists the endpoints whose position changed, sorted by
	// connection id and role.
	Positions []EndpointPosition
}

// nodeState ties a diagram node to its scene node and anchor. center is the
// node's scene bounds center, which the far ends of its connections aim at.
type nodeState struct {
	node     *scene.Node
	anchor   *anchor.DynamicAnchor
	center   *observable.Value[geometry.Point]
	handles  []*observable.Handle
	strategy string
}

// DiagramState holds the authoritative diagram for a room together with the
// scene and anchors derived from it.
type DiagramState struct {
	mu        sync.Mutex
	doc       *diagram.Diagram
	scene     *scene.Scene
	nodes     map[string]*nodeState
	lines     map[string]*scene.Node // connection id -> scene node
	serverSeq int64
	opLog     []Operation
	opts      StateOptions
	logger    *slog.Logger
	changed   map[anchor.Key]EndpointPosition
}

// NewDiagramState builds the scene and anchors for doc. The state takes
// ownership of doc.
func NewDiagramState(doc *diagram.Diagram, opts StateOptions) (*DiagramState, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if _, err := StrategyByName(opts.DefaultStrategy, opts.Epsilon); err != nil {
		return nil, err
	}

	ds := &DiagramState{
		doc:     doc,
		scene:   scene.NewScene(),
		nodes:   make(map[string]*nodeState),
		lines:   make(map[string]*scene.Node),
		opLog:   make([]Operation, 0),
		opts:    opts,
		logger:  opts.Logger.With("diagram", doc.ID),
		changed: make(map[anchor.Key]EndpointPosition),
	}
	for _, id := range doc.NodeIDs() {
		if err := ds.addNode(doc.Nodes[id]); err != nil {
			ds.Close()
			return nil, err
		}
	}
	for _, id := range doc.ConnectionIDs() {
		if err := ds.addConnection(doc.Connections[id]); err != nil {
			ds.Close()
			return nil, err
		}
	}
	ds.flush()
	clear(ds.changed)
	return ds, nil
}

// Snapshot returns a copy of the current diagram.
func (ds *DiagramState) Snapshot() (*diagram.Diagram, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.doc.Clone()
}

// ServerSeq returns the sequence number of the last applied operation.
func (ds *DiagramState) ServerSeq() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.serverSeq
}

// Positions returns every known endpoint position, sorted by connection id
// and role.
func (ds *DiagramState) Positions() []EndpointPosition {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	var out []EndpointPosition
	for id, ns := range ds.nodes {
		for k, p := range ns.anchor.Positions() {
			out = append(out, endpoint(id, k, p))
		}
	}
	sortEndpoints(out)
	return out
}

// Position returns the position of one connection endpoint. The boolean is
// false while the endpoint has not been computed.
func (ds *DiagramState) Position(connectionID, role string) (geometry.Point, bool, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ns, key, err := ds.endpoint(connectionID, role)
	if err != nil {
		return geometry.Point{}, false, err
	}
	return ns.anchor.Position(key)
}

// HitTest returns the id of the frontmost visible node containing the scene
// point p, or "".
func (ds *DiagramState) HitTest(p geometry.Point) string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.scene.HitTest(p)
}

// SelectionBounds returns the scene bounds enclosing the given visible nodes.
func (ds *DiagramState) SelectionBounds(ids []string) geometry.Rect {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.scene.SelectionBounds(ids)
}

// ApplyOperation applies op, flushes deferred anchor registrations once and
// returns the position changes it caused.
func (ds *DiagramState) ApplyOperation(op Operation) (Result, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	err := ds.applyOperationLocked(&op)
	ds.flush()
	positions := ds.drainChanges()
	if err != nil {
		operationsTotal.WithLabelValues(op.Type, "rejected").Inc()
		ds.logger.Debug("operation rejected", "op", op.ID, "type", op.Type, "error", err)
		return Result{Seq: ds.serverSeq, Operation: op, Positions: positions}, err
	}

	ds.serverSeq++
	ds.opLog = append(ds.opLog, op)
	ds.doc.Version++
	ds.doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	operationsTotal.WithLabelValues(op.Type, "applied").Inc()

	return Result{Seq: ds.serverSeq, Operation: op, Positions: positions}, nil
}

// Close releases every anchor and scene subscription.
func (ds *DiagramState) Close() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for id, ns := range ds.nodes {
		ns.anchor.Close()
		for _, h := range ns.handles {
			h.Unsubscribe()
		}
		delete(ds.nodes, id)
	}
}

// applyOperationLocked applies the operation without locking (caller must hold lock)
func (ds *DiagramState) applyOperationLocked(op *Operation) error {
	switch op.Type {
	case OpNodeCreate:
		return ds.applyNodeCreate(op)
	case OpNodeTransform:
		return ds.applyNodeTransform(op)
	case OpNodeShape:
		return ds.applyNodeShape(op)
	case OpNodeDelete:
		return ds.applyNodeDelete(op)
	case OpNodeVisibility:
		return ds.applyNodeVisibility(op)
	case OpNodeStrategy:
		return ds.applyNodeStrategy(op)
	case OpConnectionCreate:
		return ds.applyConnectionCreate(op)
	case OpConnectionDelete:
		return ds.applyConnectionDelete(op)
	case OpConnectionOrientation:
		return ds.applyConnectionOrientation(op)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op.Type)
	}
}

func (ds *DiagramState) applyNodeCreate(op *Operation) error {
	var n diagram.Node
	if err := json.Unmarshal(op.Node, &n); err != nil {
		return fmt.Errorf("%w: invalid node: %w", ErrInvalidOperation, err)
	}
	if n.ID == "" {
		n.ID = typeid.NewNodeID()
	}
	if n.Transform.SX == 0 && n.Transform.SY == 0 {
		n.Transform.SX, n.Transform.SY = 1, 1
	}
	if err := ds.addNode(n); err != nil {
		return err
	}

	ds.doc.Nodes[n.ID] = n
	op.NodeID = n.ID
	return nil
}

func (ds *DiagramState) applyNodeTransform(op *Operation) error {
	n, ns, err := ds.node(op.NodeID)
	if err != nil {
		return err
	}

	// Parse transform changes
	var changes map[string]float64
	if err := json.Unmarshal(op.Transform, &changes); err != nil {
		return fmt.Errorf("%w: invalid transform: %w", ErrInvalidOperation, err)
	}

	// Apply changes
	t := n.Transform
	for field, dst := range map[string]*float64{
		"x": &t.X, "y": &t.Y, "sx": &t.SX, "sy": &t.SY, "r": &t.R, "ax": &t.AX, "ay": &t.AY,
	} {
		if v, ok := changes[field]; ok {
			*dst = v
		}
	}
	if t.Matrix().Determinant() == 0 {
		return fmt.Errorf("%w: singular transform for %s", ErrInvalidOperation, n.ID)
	}

	n.Transform = t
	ds.doc.Nodes[n.ID] = n
	ns.node.SetTransform(t.Matrix())
	return nil
}

func (ds *DiagramState) applyNodeShape(op *Operation) error {
	n, ns, err := ds.node(op.NodeID)
	if err != nil {
		return err
	}

	var shape ShapePayload
	if err := json.Unmarshal(op.Shape, &shape); err != nil {
		return fmt.Errorf("%w: invalid shape: %w", ErrInvalidOperation, err)
	}
	if shape.Type != "" {
		n.Type = shape.Type
	}
	n.Data = shape.Data
	g, err := n.Geometry()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}

	ds.doc.Nodes[n.ID] = n
	ns.node.SetGeometry(g)
	return ds.setReferencePosition(ns.anchor, g)
}

func (ds *DiagramState) applyNodeDelete(op *Operation) error {
	n, ns, err := ds.node(op.NodeID)
	if err != nil {
		return err
	}

	op.Removed = ds.doc.ConnectionsOf(n.ID)
	for _, id := range op.Removed {
		if err := ds.removeConnection(id); err != nil {
			return err
		}
	}

	ns.anchor.Close()
	for _, h := range ns.handles {
		h.Unsubscribe()
	}
	if ns.node.InScene() {
		if err := ds.scene.Remove(ns.node); err != nil {
			return err
		}
	}
	delete(ds.nodes, n.ID)
	delete(ds.doc.Nodes, n.ID)
	return nil
}

func (ds *DiagramState) applyNodeVisibility(op *Operation) error {
	n, ns, err := ds.node(op.NodeID)
	if err != nil {
		return err
	}
	if op.Visible == nil {
		return fmt.Errorf("%w: visibility of %s not given", ErrInvalidOperation, n.ID)
	}

	switch visible := *op.Visible; {
	case visible && !ns.node.InScene():
		err = ds.scene.Add(ns.node, nil)
	case !visible && ns.node.InScene():
		err = ds.scene.Remove(ns.node)
	}
	if err != nil {
		return err
	}

	n.Visible = *op.Visible
	ds.doc.Nodes[n.ID] = n
	return nil
}

func (ds *DiagramState) applyNodeStrategy(op *Operation) error {
	n, ns, err := ds.node(op.NodeID)
	if err != nil {
		return err
	}
	s, err := StrategyByName(op.Strategy, ds.opts.Epsilon)
	if err != nil {
		return err
	}
	if err := ns.anchor.SetStrategy(s); err != nil {
		return err
	}

	ns.strategy = op.Strategy
	n.Strategy = op.Strategy
	ds.doc.Nodes[n.ID] = n
	return nil
}

func (ds *DiagramState) applyConnectionCreate(op *Operation) error {
	var c diagram.Connection
	if err := json.Unmarshal(op.Connection, &c); err != nil {
		return fmt.Errorf("%w: invalid connection: %w", ErrInvalidOperation, err)
	}
	if c.ID == "" {
		c.ID = typeid.NewConnectionID()
	}
	if err := ds.addConnection(c); err != nil {
		return err
	}

	ds.doc.Connections[c.ID] = c
	op.ConnectionID = c.ID
	return nil
}

func (ds *DiagramState) applyConnectionDelete(op *Operation) error {
	if _, ok := ds.doc.Connections[op.ConnectionID]; !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, op.ConnectionID)
	}
	return ds.removeConnection(op.ConnectionID)
}

func (ds *DiagramState) applyConnectionOrientation(op *Operation) error {
	c, ok := ds.doc.Connections[op.ConnectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, op.ConnectionID)
	}
	o, err := parseOrientation(op.Orientation)
	if err != nil {
		return err
	}

	for _, role := range []string{RoleStart, RoleEnd} {
		ns, key, err := ds.endpoint(c.ID, role)
		if err != nil {
			return err
		}
		p, err := anchor.DynamicParameter(ns.anchor, key, anchor.PreferredOrientation)
		if err != nil {
			return err
		}
		if err := p.Set(o); err != nil {
			return err
		}
	}

	c.Orientation = op.Orientation
	ds.doc.Connections[c.ID] = c
	return nil
}

// addNode creates the scene node and anchor for n. Hidden nodes are kept out
// of the scene.
func (ds *DiagramState) addNode(n diagram.Node) error {
	if ds.taken(n.ID) {
		return fmt.Errorf("%w: id %s already in use", ErrInvalidOperation, n.ID)
	}
	if strings.Contains(n.ID, "#") {
		return fmt.Errorf("%w: node id %q", ErrInvalidOperation, n.ID)
	}
	if err := checkID(n.ID, typeid.PrefixNode); err != nil {
		return err
	}
	g, err := n.Geometry()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	name := n.Strategy
	if name == "" {
		name = ds.opts.DefaultStrategy
	}
	strategy, err := StrategyByName(name, ds.opts.Epsilon)
	if err != nil {
		return err
	}

	sn := scene.NewNode(n.ID, g, n.Transform.Matrix())
	if n.Visible {
		if err := ds.scene.Add(sn, nil); err != nil {
			return err
		}
	}

	ns := &nodeState{
		node:     sn,
		center:   observable.NewValueFunc(sceneCenter(sn), func(a, b geometry.Point) bool { return a == b }),
		strategy: name,
	}
	ns.handles = append(ns.handles, sn.SubscribeVisual(func() {
		ns.center.Set(sceneCenter(sn))
	}))

	ns.anchor = anchor.NewDynamicAnchor(sn, strategy, anchor.WithLogger(ds.logger.With("node", n.ID)))
	if err := ds.setReferencePosition(ns.anchor, g); err != nil {
		return err
	}
	id := n.ID
	ns.handles = append(ns.handles, ns.anchor.SubscribePositions(func(c anchor.Positions) {
		ds.record(id, c)
	}))

	ds.nodes[n.ID] = ns
	return nil
}

// addConnection creates the scene node of c and attaches both endpoints.
func (ds *DiagramState) addConnection(c diagram.Connection) error {
	if ds.taken(c.ID) {
		return fmt.Errorf("%w: id %s already in use", ErrInvalidOperation, c.ID)
	}
	if err := checkID(c.ID, typeid.PrefixConnection); err != nil {
		return err
	}
	from, ok := ds.nodes[c.From]
	if !ok {
		return fmt.Errorf("%w: connection %s from %s", ErrNodeNotFound, c.ID, c.From)
	}
	to, ok := ds.nodes[c.To]
	if !ok {
		return fmt.Errorf("%w: connection %s to %s", ErrNodeNotFound, c.ID, c.To)
	}
	start, err := anchor.NewKey(c.ID, RoleStart)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	end := anchor.MustKey(c.ID, RoleEnd)

	var orientation []anchor.Supply
	if c.Orientation != "" {
		o, err := parseOrientation(c.Orientation)
		if err != nil {
			return err
		}
		orientation = append(orientation, anchor.WithValue(anchor.PreferredOrientation, o))
	}

	line := scene.NewNode(c.ID, nil, geometry.Identity())
	if err := ds.scene.Add(line, nil); err != nil {
		return err
	}

	// The line's local space is scene space, so the opposite centers can be
	// used as reference points directly.
	err = from.anchor.Attach(start, line,
		append([]anchor.Supply{anchor.WithSource(anchor.AnchoredReferencePoint, to.center)}, orientation...)...)
	if err != nil {
		_ = ds.scene.Remove(line)
		return err
	}
	err = to.anchor.Attach(end, line,
		append([]anchor.Supply{anchor.WithSource(anchor.AnchoredReferencePoint, from.center)}, orientation...)...)
	if err != nil {
		_ = from.anchor.Detach(start)
		_ = ds.scene.Remove(line)
		return err
	}

	ds.lines[c.ID] = line
	return nil
}

func (ds *DiagramState) removeConnection(id string) error {
	c, ok := ds.doc.Connections[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	if from, ok := ds.nodes[c.From]; ok {
		if err := from.anchor.Detach(anchor.MustKey(id, RoleStart)); err != nil {
			return err
		}
	}
	if to, ok := ds.nodes[c.To]; ok {
		if err := to.anchor.Detach(anchor.MustKey(id, RoleEnd)); err != nil {
			return err
		}
	}
	if line, ok := ds.lines[id]; ok {
		if err := ds.scene.Remove(line); err != nil {
			return err
		}
		delete(ds.lines, id)
	}
	delete(ds.doc.Connections, id)
	return nil
}

func (ds *DiagramState) setReferencePosition(a *anchor.DynamicAnchor, g geometry.Geometry) error {
	p, err := anchor.StaticParameter(a, anchor.AnchorageReferencePosition)
	if err != nil {
		return err
	}
	return p.Set(g.Bounds().Center())
}

func (ds *DiagramState) node(id string) (diagram.Node, *nodeState, error) {
	n, ok := ds.doc.Nodes[id]
	ns, okState := ds.nodes[id]
	if !ok || !okState {
		return diagram.Node{}, nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, ns, nil
}

// endpoint returns the anchor owner and key of one end of a connection.
func (ds *DiagramState) endpoint(connectionID, role string) (*nodeState, anchor.Key, error) {
	c, ok := ds.doc.Connections[connectionID]
	if !ok {
		return nil, anchor.Key{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	nodeID := c.From
	switch role {
	case RoleStart:
	case RoleEnd:
		nodeID = c.To
	default:
		return nil, anchor.Key{}, fmt.Errorf("%w: role %q", ErrInvalidOperation, role)
	}
	ns, ok := ds.nodes[nodeID]
	if !ok {
		return nil, anchor.Key{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return ns, anchor.MustKey(connectionID, role), nil
}

func (ds *DiagramState) taken(id string) bool {
	if id == "" || id == scene.RootID {
		return true
	}
	_, node := ds.nodes[id]
	_, line := ds.lines[id]
	return node || line
}

// checkID validates ids in the server's generated form. An id starting with a
// generated prefix must be a well-formed typeid carrying the prefix of its
// kind; ids in any other form are accepted as given.
func checkID(id, prefix string) error {
	for _, p := range []string{typeid.PrefixNode, typeid.PrefixConnection} {
		if strings.HasPrefix(id, p+"_") {
			if err := typeid.Validate(id, prefix); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
			}
			return nil
		}
	}
	return nil
}

// flush performs deferred anchor registrations, once per operation.
func (ds *DiagramState) flush() {
	ids := make([]string, 0, len(ds.nodes))
	for id := range ds.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		ds.nodes[id].anchor.FlushPendingRegistrations()
	}
}

func (ds *DiagramState) record(nodeID string, changes anchor.Positions) {
	for k, c := range changes {
		ep := endpoint(nodeID, k, c.New)
		if c.Removed {
			ep = endpoint(nodeID, k, c.Old)
			ep.Removed = true
		}
		ds.changed[k] = ep
	}
}

func (ds *DiagramState) drainChanges() []EndpointPosition {
	if len(ds.changed) == 0 {
		return nil
	}
	out := make([]EndpointPosition, 0, len(ds.changed))
	for _, ep := range ds.changed {
		out = append(out, ep)
	}
	clear(ds.changed)
	sortEndpoints(out)
	return out
}

func endpoint(nodeID string, k anchor.Key, p geometry.Point) EndpointPosition {
	return EndpointPosition{
		ConnectionID: k.AnchoredID(),
		Role:         k.Role(),
		NodeID:       nodeID,
		X:            p.X,
		Y:            p.Y,
	}
}

func sortEndpoints(eps []EndpointPosition) {
	slices.SortFunc(eps, func(a, b EndpointPosition) int {
		if c := strings.Compare(a.ConnectionID, b.ConnectionID); c != 0 {
			return c
		}
		return strings.Compare(a.Role, b.Role)
	})
}

func sceneCenter(n *scene.Node) geometry.Point {
	return n.SceneBounds().Center()
}

// parseOrientation maps the empty string to the default orientation.
func parseOrientation(s string) (anchor.Orientation, error) {
	if s == "" {
		return anchor.Horizontal, nil
	}
	o, err := anchor.ParseOrientation(s)
	if err != nil {
		return o, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	return o, nil
}

// GetServerTimestamp returns the current server timestamp
func GetServerTimestamp() int64 {
	return time.Now().UnixMilli()
}
