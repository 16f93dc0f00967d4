package observable

import "reflect"

// Equal reports whether two values are the same for change detection.
type Equal[T any] func(a, b T) bool

// DeepEqual is the default Equal.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// Value holds a single value and notifies subscribers when Set changes it.
type Value[T any] struct {
	v       T
	equal   Equal[T]
	changed Signal[[2]T]
}

// NewValue returns a Value compared with DeepEqual.
func NewValue[T any](initial T) *Value[T] {
	return NewValueFunc(initial, DeepEqual[T])
}

// NewValueFunc returns a Value compared with equal.
func NewValueFunc[T any](initial T, equal Equal[T]) *Value[T] {
	if equal == nil {
		equal = DeepEqual[T]
	}
	return &Value[T]{v: initial, equal: equal}
}

func (v *Value[T]) Get() T {
	return v.v
}

// Set stores next and fires once if it differs from the current value. It
// reports whether a notification was fired.
func (v *Value[T]) Set(next T) bool {
	if v.equal(v.v, next) {
		return false
	}
	old := v.v
	v.v = next
	v.changed.Emit([2]T{old, next})
	return true
}

// Subscribe registers fn to be called with the old and new value on change.
func (v *Value[T]) Subscribe(fn func(old, next T)) *Handle {
	return v.changed.Subscribe(func(pair [2]T) { fn(pair[0], pair[1]) })
}

// Subscribers returns the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	return v.changed.Len()
}
