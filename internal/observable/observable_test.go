package observable_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/anchors/internal/observable"
)

func TestSignalUnsubscribeDuringEmit(t *testing.T) {
	var s observable.Signal[int]
	var got []string

	var second *observable.Handle
	s.Subscribe(func(int) {
		got = append(got, "first")
		second.Unsubscribe()
	})
	second = s.Subscribe(func(int) { got = append(got, "second") })

	s.Emit(1)
	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, 1, s.Len())
	assert.False(t, second.Active())

	second.Unsubscribe() // idempotent
	var nilHandle *observable.Handle
	nilHandle.Unsubscribe()
}

func TestHandleIDsAreDistinct(t *testing.T) {
	var s observable.Signal[int]
	a := s.Subscribe(func(int) {})
	b := s.Subscribe(func(int) {})

	assert.NotEqual(t, uuid.Nil, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	id := a.ID()
	a.Unsubscribe()
	assert.Equal(t, id, a.ID(), "id survives cancellation")

	var nilHandle *observable.Handle
	assert.Equal(t, uuid.Nil, nilHandle.ID())
}

func TestValueFiresOnlyOnChange(t *testing.T) {
	v := observable.NewValue(3)
	var fired [][2]int
	h := v.Subscribe(func(old, next int) { fired = append(fired, [2]int{old, next}) })

	assert.False(t, v.Set(3))
	assert.True(t, v.Set(4))
	assert.Equal(t, [][2]int{{3, 4}}, fired)

	h.Unsubscribe()
	v.Set(5)
	assert.Len(t, fired, 1)
	assert.Equal(t, 0, v.Subscribers())
}

func TestMapBatchCoalesces(t *testing.T) {
	m := observable.NewMap[string, int](nil)
	var events []observable.Changes[string, int]
	m.Subscribe(func(c observable.Changes[string, int]) { events = append(events, c) })

	m.Batch(func() {
		m.Put("a", 1)
		m.Put("a", 2)
		m.Put("b", 7)
	})
	require.Len(t, events, 1)
	assert.Equal(t, observable.Change[int]{New: 2}, events[0]["a"])
	assert.Equal(t, observable.Change[int]{New: 7}, events[0]["b"])

	// Put of the same value is a no-op.
	assert.False(t, m.Put("a", 2))
	assert.Len(t, events, 1)

	// A batch that restores the original value fires nothing.
	m.Batch(func() {
		m.Put("a", 9)
		m.Put("a", 2)
	})
	assert.Len(t, events, 1)
}

func TestMapDelete(t *testing.T) {
	m := observable.NewMap[string, int](nil)
	m.Put("a", 1)

	var last observable.Changes[string, int]
	m.Subscribe(func(c observable.Changes[string, int]) { last = c })

	assert.True(t, m.Delete("a"))
	assert.Equal(t, observable.Change[int]{Old: 1, HadOld: true, Removed: true}, last["a"])
	assert.False(t, m.Delete("a"))
	assert.Equal(t, 0, m.Len())

	// Added and removed within a batch: nothing to report.
	last = nil
	m.Batch(func() {
		m.Put("b", 1)
		m.Delete("b")
	})
	assert.Nil(t, last)
}

func TestMapNestedBatchFiresOnce(t *testing.T) {
	m := observable.NewMap[string, int](nil)
	count := 0
	m.Subscribe(func(observable.Changes[string, int]) { count++ })

	m.Batch(func() {
		m.Put("a", 1)
		m.Batch(func() { m.Put("b", 2) })
		assert.Equal(t, 0, count)
	})
	assert.Equal(t, 1, count)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, m.Snapshot())
}
