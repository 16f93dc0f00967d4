package observable

import "github.com/google/uuid"

// Handle identifies one subscription. Unsubscribe is idempotent.
type Handle struct {
	id     uuid.UUID
	cancel func()
}

func newHandle(cancel func()) *Handle {
	return &Handle{id: uuid.New(), cancel: cancel}
}

// ID returns the subscription id, mostly useful in logs.
func (h *Handle) ID() uuid.UUID {
	if h == nil {
		return uuid.Nil
	}
	return h.id
}

// Unsubscribe stops further deliveries to the subscriber. Calling it on a nil
// handle or more than once is a no-op.
func (h *Handle) Unsubscribe() {
	if h == nil || h.cancel == nil {
		return
	}
	cancel := h.cancel
	h.cancel = nil
	cancel()
}

// Active reports whether the subscription has not been cancelled.
func (h *Handle) Active() bool {
	return h != nil && h.cancel != nil
}
