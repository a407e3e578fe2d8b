package kernel

import "testing"

func TestBus_DeliveryOrder(t *testing.T) {
	b := NewBus()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		if err := b.Subscribe("tick", func(any) { order = append(order, name) }); err != nil {
			t.Fatalf("subscribe %s: %v", name, err)
		}
	}
	b.Publish("tick", nil)
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("delivery order %v", order)
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	b := NewBus()
	b.Publish("nobody-listens", 42)
	if n := b.Subscribers("nobody-listens"); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}
}

func TestBus_NilHandler(t *testing.T) {
	b := NewBus()
	if err := b.Subscribe("tick", nil); err == nil {
		t.Fatalf("expected nil handler rejection")
	}
}

func TestBus_SubscribeDuringDelivery(t *testing.T) {
	b := NewBus()
	var innerErr error
	if err := b.Subscribe("tick", func(any) {
		innerErr = b.Subscribe("tick", func(any) {})
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Publish("tick", nil)
	if innerErr == nil {
		t.Fatalf("expected subscribe-during-delivery rejection")
	}
	// subscribing to a different signal from a handler is allowed
	if err := b.Subscribe("tock", func(any) {
		if err := b.Subscribe("tick", func(any) {}); err != nil {
			t.Fatalf("cross-signal subscribe: %v", err)
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Publish("tock", nil)
}

func TestBus_ReentrantPublishPanics(t *testing.T) {
	b := NewBus()
	if err := b.Subscribe("tick", func(any) { b.Publish("tick", nil) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on re-entrant publish")
		}
	}()
	b.Publish("tick", nil)
}

func TestBus_CascadedPublish(t *testing.T) {
	b := NewBus()
	var got []string
	if err := b.Subscribe("a", func(any) {
		got = append(got, "a")
		b.Publish("b", nil)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe("b", func(any) { got = append(got, "b") }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Publish("a", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("cascade order %v", got)
	}
}
