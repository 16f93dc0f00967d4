package observable

// Change describes what happened to one key during a batch.
type Change[V any] struct {
	Old     V    `json:"old"`
	New     V    `json:"new"`
	HadOld  bool `json:"hadOld"`
	Removed bool `json:"removed"`
}

// Changes is the coalesced set of changes delivered once per batch.
type Changes[K comparable, V any] map[K]Change[V]

// Map is an observable map. Every mutation that changes an entry is recorded;
// the subscribers see one Changes value per outermost Batch, and nothing at
// all when the batch left the map as it found it.
type Map[K comparable, V any] struct {
	entries map[K]V
	equal   Equal[V]
	changed Signal[Changes[K, V]]

	depth   int
	pending Changes[K, V]
}

// NewMap returns an empty map whose values are compared with equal, or with
// DeepEqual when equal is nil.
func NewMap[K comparable, V any](equal Equal[V]) *Map[K, V] {
	if equal == nil {
		equal = DeepEqual[V]
	}
	return &Map[K, V]{
		entries: make(map[K]V),
		equal:   equal,
	}
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.entries[k]
	return v, ok
}

func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

// Snapshot returns a copy of the current entries.
func (m *Map[K, V]) Snapshot() map[K]V {
	out := make(map[K]V, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Put stores v under k. It reports whether the entry changed.
func (m *Map[K, V]) Put(k K, v V) bool {
	old, had := m.entries[k]
	if had && m.equal(old, v) {
		return false
	}
	m.Batch(func() {
		m.entries[k] = v
		m.record(k, old, had, v, false)
	})
	return true
}

// Delete removes k. It reports whether an entry existed.
func (m *Map[K, V]) Delete(k K) bool {
	old, had := m.entries[k]
	if !had {
		return false
	}
	m.Batch(func() {
		delete(m.entries, k)
		var zero V
		m.record(k, old, true, zero, true)
	})
	return true
}

// Batch runs fn and delivers the changes it made as one notification once
// the outermost batch returns.
func (m *Map[K, V]) Batch(fn func()) {
	m.depth++
	func() {
		defer func() { m.depth-- }()
		fn()
	}()
	if m.depth > 0 || len(m.pending) == 0 {
		return
	}
	changes := m.pending
	m.pending = nil
	m.changed.Emit(changes)
}

// Subscribe registers fn for coalesced change notifications.
func (m *Map[K, V]) Subscribe(fn func(Changes[K, V])) *Handle {
	return m.changed.Subscribe(fn)
}

func (m *Map[K, V]) record(k K, old V, had bool, next V, removed bool) {
	if m.pending == nil {
		m.pending = make(Changes[K, V])
	}

	prev, seen := m.pending[k]
	if !seen {
		m.pending[k] = Change[V]{Old: old, New: next, HadOld: had, Removed: removed}
		return
	}

	// Keep the state from before the batch and fold in the latest value.
	c := Change[V]{Old: prev.Old, HadOld: prev.HadOld, New: next, Removed: removed}
	switch {
	case removed && !c.HadOld:
		delete(m.pending, k)
	case !removed && c.HadOld && m.equal(c.Old, next):
		delete(m.pending, k)
	default:
		m.pending[k] = c
	}
}
