package observable

type subscriber[T any] struct {
	fn   func(T)
	dead bool
}

// Signal delivers values to its subscribers in subscription order.
type Signal[T any] struct {
	subs []*subscriber[T]
}

// Subscribe registers fn and returns the handle that cancels it.
func (s *Signal[T]) Subscribe(fn func(T)) *Handle {
	sub := &subscriber[T]{fn: fn}
	s.subs = append(s.subs, sub)
	return newHandle(func() { s.remove(sub) })
}

// Emit delivers v to every subscriber registered when Emit was called and not
// cancelled before its turn.
func (s *Signal[T]) Emit(v T) {
	subs := make([]*subscriber[T], len(s.subs))
	copy(subs, s.subs)
	for _, sub := range subs {
		if sub.dead {
			continue
		}
		sub.fn(v)
	}
}

// Len returns the number of live subscribers.
func (s *Signal[T]) Len() int {
	return len(s.subs)
}

func (s *Signal[T]) remove(target *subscriber[T]) {
	target.dead = true
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub != target {
			kept = append(kept, sub)
		}
	}
	for i := len(kept); i < len(s.subs); i++ {
		s.subs[i] = nil
	}
	s.subs = kept
}
