package anchor

import (
	"fmt"

	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/observable"
)

// DynamicAnchor is an anchor whose strategy inputs live in parameter sets:
// one static set shared by all keys and one dynamic set per attached key.
//
// The static AnchorageReferenceGeometry parameter is bound to the current
// anchorage's geometry and follows it as the anchorage changes.
type DynamicAnchor struct {
	core     *core
	strategy Strategy

	statics  *ParameterSet
	dynamics map[Key]*ParameterSet

	anchorageGeometry *observable.Value[geometry.Geometry]
}

// NewDynamicAnchor returns an anchor bound to anchorage that computes
// positions with strategy. A nil strategy means ChopBoxStrategy. The
// anchorage may be nil and bound later with SetAnchorage.
func NewDynamicAnchor(anchorage Visual, strategy Strategy, opts ...Option) *DynamicAnchor {
	o := buildOptions(opts)
	if strategy == nil {
		strategy = ChopBoxStrategy{}
	}

	a := &DynamicAnchor{
		core:              newCore(o.logger.With("component", "anchor")),
		strategy:          strategy,
		statics:           NewParameterSet(),
		dynamics:          make(map[Key]*ParameterSet),
		anchorageGeometry: observable.NewValue[geometry.Geometry](nil),
	}
	a.core.compute = a.compute
	a.core.anchorageChanged = a.refreshGeometry

	geom, _ := ensure(a.statics, AnchorageReferenceGeometry, a.staticChanged)
	geom.Bind(a.anchorageGeometry)

	a.core.setAnchorage(anchorage)
	return a
}

// NewStaticAnchor returns an anchor that places every key at pos, a point in
// the anchorage's local space, transformed into scene space.
func NewStaticAnchor(anchorage Visual, pos geometry.Point, opts ...Option) *DynamicAnchor {
	a := NewDynamicAnchor(anchorage, ReferencePointStrategy{}, opts...)
	p, _ := ensure(a.statics, AnchorageReferencePosition, a.staticChanged)
	_ = p.Set(pos)
	return a
}

func (a *DynamicAnchor) Anchorage() Visual { return a.core.anchorage }

// SetAnchorage rebinds the anchor. All registrations are rebuilt before any
// position is recomputed.
func (a *DynamicAnchor) SetAnchorage(v Visual) {
	a.core.setAnchorage(v)
}

func (a *DynamicAnchor) Strategy() Strategy { return a.strategy }

// SetStrategy swaps the computation strategy and provisions its parameters
// for every attached key. Nothing changes when provisioning would fail for any
// key. All positions are recomputed with the new strategy in one batch.
func (a *DynamicAnchor) SetStrategy(s Strategy) error {
	if s == nil {
		return ErrNilStrategy
	}
	if err := a.checkStatics(s); err != nil {
		return fmt.Errorf("set strategy %s: %w", s.Name(), err)
	}
	keys := a.core.sortedKeys()
	for _, k := range keys {
		if err := checkDynamics(s, a.dynamics[k]); err != nil {
			return fmt.Errorf("set strategy %s for %s: %w", s.Name(), k, err)
		}
	}

	for _, k := range keys {
		// Cannot fail after checkDynamics.
		_ = a.provisionDynamics(s, k, a.dynamics[k])
	}
	a.strategy = s
	a.core.logger.Debug("anchor strategy changed", "strategy", s.Name(), "keys", len(keys))

	a.core.positions.Batch(func() {
		a.core.markAll()
		a.core.revalidate()
	})
	return nil
}

// Attach attaches key for the anchored element. Supplies initialise dynamic
// parameters of the key; any other dynamic parameter the strategy requires is
// created with its default value. Attach fails with ErrMissingParameter when
// a required static parameter was never set, and with ErrAlreadyAttached for
// a key that is attached already. A failed Attach changes nothing.
func (a *DynamicAnchor) Attach(key Key, anchored Visual, supplies ...Supply) error {
	if err := a.core.checkAttach(key, anchored); err != nil {
		return err
	}
	if err := a.checkStatics(a.strategy); err != nil {
		return fmt.Errorf("attach %s: %w", key, err)
	}

	set := NewParameterSet()
	listener := a.keyChanged(key)
	for _, s := range supplies {
		if err := s.apply(set, listener); err != nil {
			set.clear()
			return fmt.Errorf("attach %s: %w", key, err)
		}
	}
	if err := a.provisionDynamics(a.strategy, key, set); err != nil {
		set.clear()
		return fmt.Errorf("attach %s: %w", key, err)
	}

	a.dynamics[key] = set
	if err := a.core.attach(key, anchored); err != nil {
		delete(a.dynamics, key)
		set.clear()
		return err
	}
	return nil
}

// Detach removes key, its cached position and its dynamic parameters.
func (a *DynamicAnchor) Detach(key Key) error {
	if err := a.core.detach(key); err != nil {
		return err
	}
	if set, ok := a.dynamics[key]; ok {
		set.clear()
		delete(a.dynamics, key)
	}
	return nil
}

func (a *DynamicAnchor) IsAttached(key Key) bool {
	_, ok := a.core.keys[key]
	return ok
}

// Keys returns the attached keys sorted by anchored id, then role.
func (a *DynamicAnchor) Keys() []Key {
	return a.core.sortedKeys()
}

// Position returns the cached scene position of key. The boolean is false
// while no position has been computed since the key was attached.
func (a *DynamicAnchor) Position(key Key) (geometry.Point, bool, error) {
	return a.core.position(key)
}

// Positions returns a copy of every cached position.
func (a *DynamicAnchor) Positions() map[Key]geometry.Point {
	return a.core.positions.Snapshot()
}

// SubscribePositions registers fn for position changes. fn receives one
// coalesced change set per notification and is never called for
// recomputations that left every position unchanged.
func (a *DynamicAnchor) SubscribePositions(fn func(Positions)) *observable.Handle {
	h := a.core.positions.Subscribe(fn)
	a.core.logger.Debug("position subscriber added", "subscription", h.ID())
	return h
}

// FlushPendingRegistrations performs the registrations deferred by scene
// presence changes and recomputes the keys they made computable. Callers
// invoke it once per outer event, outside any scene notification.
func (a *DynamicAnchor) FlushPendingRegistrations() {
	a.core.flush()
}

// PendingRegistrations returns how many elements, the anchorage included,
// wait for FlushPendingRegistrations.
func (a *DynamicAnchor) PendingRegistrations() int {
	n := len(a.core.pending)
	if a.core.pendingAnchorage {
		n++
	}
	return n
}

// Close detaches every key and releases all subscriptions and parameters.
func (a *DynamicAnchor) Close() {
	a.core.close()
	for k, set := range a.dynamics {
		set.clear()
		delete(a.dynamics, k)
	}
	a.statics.clear()
}

// StaticParameter returns the anchor-level parameter described by d, creating
// it with its default value when absent.
func StaticParameter[T any](a *DynamicAnchor, d Descriptor[T]) (*Parameter[T], error) {
	if d.Kind != Static {
		return nil, fmt.Errorf("static parameter %s: %w", d.Type, ErrParameterKind)
	}
	return ensure(a.statics, d, a.staticChanged)
}

// DynamicParameter returns the parameter described by d for an attached key,
// creating it with its default value when absent.
func DynamicParameter[T any](a *DynamicAnchor, key Key, d Descriptor[T]) (*Parameter[T], error) {
	if d.Kind != Dynamic {
		return nil, fmt.Errorf("dynamic parameter %s: %w", d.Type, ErrParameterKind)
	}
	set, ok := a.dynamics[key]
	if !ok {
		return nil, fmt.Errorf("dynamic parameter %s of %s: %w", d.Type, key, ErrNotAttached)
	}
	return ensure(set, d, a.keyChanged(key))
}

func (a *DynamicAnchor) compute(key Key, anchored Visual) (geometry.Point, error) {
	params := NewParams(a.statics, a.dynamics[key], a.keyChanged(key))
	p, err := a.strategy.Compute(a.core.anchorage, anchored, params)
	if err != nil {
		return p, fmt.Errorf("%s: %w", a.strategy.Name(), err)
	}
	return p, nil
}

func (a *DynamicAnchor) refreshGeometry() {
	if a.core.anchorage == nil {
		a.anchorageGeometry.Set(nil)
		return
	}
	a.anchorageGeometry.Set(a.core.anchorage.Geometry())
}

func (a *DynamicAnchor) staticChanged(ParamType) {
	a.core.handle(notification{kind: ParameterChanged})
}

func (a *DynamicAnchor) keyChanged(key Key) func(ParamType) {
	return func(ParamType) {
		a.core.handle(notification{kind: ParameterChanged, keys: []Key{key}})
	}
}

// checkStatics fails when s requires a static parameter that is absent or
// stored with another value type.
func (a *DynamicAnchor) checkStatics(s Strategy) error {
	for _, req := range s.RequiredParameters() {
		if req.ParamKind() != Static {
			continue
		}
		if !a.statics.Has(req.ParamType()) {
			if req.IsOptional() {
				continue
			}
			return fmt.Errorf("%w: %s", ErrMissingParameter, req.ParamType())
		}
		if err := req.check(a.statics); err != nil {
			return err
		}
	}
	return nil
}

func checkDynamics(s Strategy, set *ParameterSet) error {
	for _, req := range s.RequiredParameters() {
		if req.ParamKind() != Dynamic {
			continue
		}
		if err := req.check(set); err != nil {
			return err
		}
	}
	return nil
}

// provisionDynamics creates every dynamic parameter s requires that set lacks.
func (a *DynamicAnchor) provisionDynamics(s Strategy, key Key, set *ParameterSet) error {
	listener := a.keyChanged(key)
	for _, req := range s.RequiredParameters() {
		if req.ParamKind() != Dynamic {
			continue
		}
		if err := req.instantiate(set, listener); err != nil {
			return err
		}
	}
	return nil
}
