package kernel

import "fmt"

// Handler receives a signal payload. Handlers must be idempotent with respect
// to duplicate firings within the same day: independent detectors may request
// the same lifecycle transition more than once.
type Handler func(payload any)

// Bus is a named-event publish/subscribe registry. Delivery is synchronous and
// in registration order, within the call frame of the publisher. A handler may
// itself publish a different signal, but subscribing to the signal currently
// being delivered is rejected.
type Bus struct {
	handlers   map[string][]Handler
	delivering map[string]bool
}

// NewBus constructs an empty signal bus.
func NewBus() *Bus {
	return &Bus{
		handlers:   make(map[string][]Handler),
		delivering: make(map[string]bool),
	}
}

// Subscribe registers a handler for a named signal.
func (b *Bus) Subscribe(signal string, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for signal %q", signal)
	}
	if b.delivering[signal] {
		return fmt.Errorf("cannot subscribe to signal %q during its delivery", signal)
	}
	b.handlers[signal] = append(b.handlers[signal], h)
	return nil
}

// Publish delivers payload to all handlers currently registered for signal,
// in registration order, before returning. Publishing a signal with no
// subscribers is not an error.
func (b *Bus) Publish(signal string, payload any) {
	if b.delivering[signal] {
		// Re-entrant publish of the same signal would re-run handlers that
		// are still on the stack; the two lifecycle signals in this domain
		// never legitimately do that.
		panic(fmt.Sprintf("re-entrant publish of signal %q", signal))
	}
	b.delivering[signal] = true
	defer func() { b.delivering[signal] = false }()
	for _, h := range b.handlers[signal] {
		h(payload)
	}
}

// Subscribers returns the number of handlers registered for a signal.
func (b *Bus) Subscribers(signal string) int {
	return len(b.handlers[signal])
}
