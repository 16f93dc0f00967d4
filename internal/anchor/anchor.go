package anchor

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/inamate/anchors/internal/geometry"
	"github.com/inamate/anchors/internal/observable"
)

// Positions is the change set delivered to position subscribers.
type Positions = observable.Changes[Key, geometry.Point]

// element is the bookkeeping for one anchored element. visualH is nil while
// registration is deferred because either side lacks scene presence.
type element struct {
	visual    Visual
	keys      map[Key]struct{}
	visualH   *observable.Handle
	presenceH *observable.Handle
}

// core runs the attach/detach and recomputation lifecycle shared by all
// anchors. The concrete anchor supplies the computation through compute and
// may observe anchorage changes through anchorageChanged.
type core struct {
	logger *slog.Logger

	anchorage          Visual
	anchorageVisualH   *observable.Handle
	anchoragePresenceH *observable.Handle

	elements map[string]*element
	keys     map[Key]*element
	stale    map[Key]struct{}

	pending          map[string]struct{}
	pendingAnchorage bool

	positions    *observable.Map[Key, geometry.Point]
	revalidating bool

	compute          func(key Key, anchored Visual) (geometry.Point, error)
	anchorageChanged func()
}

func newCore(logger *slog.Logger) *core {
	return &core{
		logger:    logger,
		elements:  make(map[string]*element),
		keys:      make(map[Key]*element),
		stale:     make(map[Key]struct{}),
		pending:   make(map[string]struct{}),
		positions: observable.NewMap[Key, geometry.Point](pointsEqual),
	}
}

// setAnchorage tears down every registration, binds v and registers again
// before anything is recomputed.
func (c *core) setAnchorage(v Visual) {
	if v == c.anchorage {
		return
	}

	c.anchoragePresenceH.Unsubscribe()
	c.anchorageVisualH.Unsubscribe()
	c.anchoragePresenceH, c.anchorageVisualH = nil, nil
	for _, el := range c.elements {
		el.visualH.Unsubscribe()
		el.visualH = nil
	}
	c.pendingAnchorage = false

	c.anchorage = v
	if v != nil {
		c.anchoragePresenceH = v.SubscribePresence(func(bool) {
			c.handle(notification{kind: ScenePresenceChanged, anchorage: true})
		})
	}

	c.positions.Batch(func() {
		if c.anchorageChanged != nil {
			c.anchorageChanged()
		}
		c.syncAnchorage()
		c.markAll()
		c.revalidate()
	})
}

// attach registers key for the anchored element and computes its position
// when both sides are in the scene.
func (c *core) attach(key Key, anchored Visual) error {
	if err := c.checkAttach(key, anchored); err != nil {
		return err
	}

	el, ok := c.elements[key.anchoredID]
	if !ok {
		el = &element{visual: anchored, keys: make(map[Key]struct{})}
		id := key.anchoredID
		el.presenceH = anchored.SubscribePresence(func(bool) {
			c.handle(notification{kind: ScenePresenceChanged, source: id})
		})
		c.elements[id] = el
		c.syncElement(el)
	}

	el.keys[key] = struct{}{}
	c.keys[key] = el
	c.stale[key] = struct{}{}
	attachedKeys.Inc()

	c.logger.Debug("anchor key attached", "key", key, "registered", el.visualH != nil)
	c.revalidate()
	return nil
}

// checkAttach validates key against anchored without changing any state.
func (c *core) checkAttach(key Key, anchored Visual) error {
	if key.IsZero() {
		return fmt.Errorf("attach: %w", ErrInvalidKey)
	}
	if anchored == nil || anchored.ID() != key.anchoredID {
		return fmt.Errorf("attach %s: anchored element does not match key: %w", key, ErrInvalidKey)
	}
	if _, ok := c.keys[key]; ok {
		return fmt.Errorf("attach %s: %w", key, ErrAlreadyAttached)
	}
	if el, ok := c.elements[key.anchoredID]; ok && el.visual != anchored {
		return fmt.Errorf("attach %s: another element is attached under id %q: %w", key, key.anchoredID, ErrInvalidKey)
	}
	return nil
}

// detach drops key's position and, with the last key of an element, every
// subscription on that element.
func (c *core) detach(key Key) error {
	el, ok := c.keys[key]
	if !ok {
		return fmt.Errorf("detach %s: %w", key, ErrNotAttached)
	}

	delete(c.keys, key)
	delete(el.keys, key)
	delete(c.stale, key)
	attachedKeys.Dec()

	if len(el.keys) == 0 {
		el.visualH.Unsubscribe()
		el.presenceH.Unsubscribe()
		delete(c.elements, key.anchoredID)
		if _, ok := c.pending[key.anchoredID]; ok {
			delete(c.pending, key.anchoredID)
			pendingRegistrations.Dec()
		}
	}

	c.positions.Delete(key)
	c.logger.Debug("anchor key detached", "key", key)
	return nil
}

func (c *core) position(key Key) (geometry.Point, bool, error) {
	if _, ok := c.keys[key]; !ok {
		return geometry.Point{}, false, fmt.Errorf("position %s: %w", key, ErrNotAttached)
	}
	if c.anchorage == nil {
		return geometry.Point{}, false, fmt.Errorf("position %s: %w", key, ErrNoAnchorage)
	}
	p, ok := c.positions.Get(key)
	return p, ok, nil
}

// sortedKeys returns the attached keys in a stable order.
func (c *core) sortedKeys() []Key {
	keys := make([]Key, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// handle is the single entry point for every notification.
func (c *core) handle(n notification) {
	switch n.kind {
	case ScenePresenceChanged:
		// Registration changes wait for FlushPendingRegistrations so that no
		// subscription list is modified while it is being delivered.
		if n.anchorage {
			c.pendingAnchorage = true
		} else if _, ok := c.pending[n.source]; !ok {
			c.pending[n.source] = struct{}{}
			pendingRegistrations.Inc()
		}
		c.logger.Debug("anchor registration deferred", "anchorage", n.anchorage, "element", n.source)

	case VisualChanged:
		c.positions.Batch(func() {
			if n.anchorage {
				c.markAll()
				if c.anchorageChanged != nil {
					c.anchorageChanged()
				}
			} else if el, ok := c.elements[n.source]; ok {
				for k := range el.keys {
					c.stale[k] = struct{}{}
				}
			}
			c.revalidate()
		})

	case ParameterChanged:
		c.positions.Batch(func() {
			if n.keys == nil {
				c.markAll()
			}
			for _, k := range n.keys {
				if _, ok := c.keys[k]; ok {
					c.stale[k] = struct{}{}
				}
			}
			c.revalidate()
		})
	}
}

// flush performs deferred registrations and recomputes what they enabled.
func (c *core) flush() {
	if !c.pendingAnchorage && len(c.pending) == 0 {
		return
	}

	c.positions.Batch(func() {
		if c.pendingAnchorage {
			c.pendingAnchorage = false
			c.syncAnchorage()
		}

		ids := make([]string, 0, len(c.pending))
		for id := range c.pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			delete(c.pending, id)
			pendingRegistrations.Dec()
			if el, ok := c.elements[id]; ok {
				c.syncElement(el)
			}
		}
		c.revalidate()
	})
}

func (c *core) anchorageRegistered() bool {
	return c.anchorageVisualH != nil
}

// syncAnchorage registers or unregisters the anchorage visual listener to
// match its scene presence, then does the same for every element.
func (c *core) syncAnchorage() {
	want := c.anchorage != nil && c.anchorage.InScene()
	switch {
	case want && c.anchorageVisualH == nil:
		c.anchorageVisualH = c.anchorage.SubscribeVisual(func() {
			c.handle(notification{kind: VisualChanged, anchorage: true})
		})
		c.logger.Debug("anchorage registered", "anchorage", c.anchorage.ID(), "subscription", c.anchorageVisualH.ID())
		if c.anchorageChanged != nil {
			c.anchorageChanged()
		}
		c.markAll()
	case !want && c.anchorageVisualH != nil:
		c.anchorageVisualH.Unsubscribe()
		c.anchorageVisualH = nil
	}

	for _, el := range c.elements {
		c.syncElement(el)
	}
}

// syncElement registers or unregisters the element's visual listener. It is
// registered only while both the element and the anchorage are in the scene.
func (c *core) syncElement(el *element) {
	want := c.anchorageRegistered() && el.visual.InScene()
	switch {
	case want && el.visualH == nil:
		id := el.visual.ID()
		el.visualH = el.visual.SubscribeVisual(func() {
			c.handle(notification{kind: VisualChanged, source: id})
		})
		c.logger.Debug("anchor element registered", "element", id, "subscription", el.visualH.ID())
		for k := range el.keys {
			c.stale[k] = struct{}{}
		}
	case !want && el.visualH != nil:
		el.visualH.Unsubscribe()
		el.visualH = nil
	}
}

func (c *core) markAll() {
	for k := range c.keys {
		c.stale[k] = struct{}{}
	}
}

// computable reports whether key may be recomputed now.
func (c *core) computable(el *element) bool {
	return c.anchorageRegistered() && c.anchorage.InScene() &&
		el.visualH != nil && el.visual.InScene()
}

// revalidate recomputes every stale key that can be computed, in one batch.
// Keys that cannot be computed stay stale. Notifications arriving while
// revalidating only mark keys; the running loop picks them up.
func (c *core) revalidate() {
	if c.revalidating {
		return
	}

	c.positions.Batch(func() {
		c.revalidating = true
		defer func() { c.revalidating = false }()

		for {
			var ready []Key
			for k := range c.stale {
				if c.computable(c.keys[k]) {
					ready = append(ready, k)
				}
			}
			if len(ready) == 0 {
				return
			}
			slices.SortFunc(ready, compareKeys)
			for _, k := range ready {
				if _, ok := c.stale[k]; !ok {
					continue
				}
				delete(c.stale, k)
				if el, ok := c.keys[k]; ok {
					c.updatePosition(k, el)
				}
			}
		}
	})
}

// updatePosition runs the computation for key and publishes the result when
// it is finite and differs from the cached value.
func (c *core) updatePosition(key Key, el *element) {
	old, had := c.positions.Get(key)

	p, err := c.compute(key, el.visual)
	if err != nil {
		recomputations.WithLabelValues(resultFailed).Inc()
		if errors.Is(err, geometry.ErrEmptyGeometry) {
			c.logger.Warn("anchor position not derived", "key", key, "error", err)
		} else {
			c.logger.Debug("anchor position not derived", "key", key, "error", err)
		}
		return
	}
	if !p.IsFinite() {
		recomputations.WithLabelValues(resultDiscarded).Inc()
		c.logger.Debug("anchor position discarded", "key", key, "position", p)
		return
	}
	if had && old == p {
		recomputations.WithLabelValues(resultUnchanged).Inc()
		return
	}

	c.positions.Put(key, p)
	recomputations.WithLabelValues(resultPublished).Inc()
}

// close releases every subscription and drops all keys and positions.
func (c *core) close() {
	c.anchoragePresenceH.Unsubscribe()
	c.anchorageVisualH.Unsubscribe()
	c.anchoragePresenceH, c.anchorageVisualH = nil, nil

	for id, el := range c.elements {
		el.visualH.Unsubscribe()
		el.presenceH.Unsubscribe()
		delete(c.elements, id)
	}
	pendingRegistrations.Sub(float64(len(c.pending)))
	clear(c.pending)
	c.pendingAnchorage = false

	c.positions.Batch(func() {
		for k := range c.keys {
			c.positions.Delete(k)
			attachedKeys.Dec()
		}
	})
	clear(c.keys)
	clear(c.stale)
}
