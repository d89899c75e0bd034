package notifications

import (
	"testing"
	"time"
)

func TestBusBroadcastReachesChannelSubscribers(t *testing.T) {
	bus := NewBus()

	operator := bus.Subscribe(OperatorChannel)
	defer operator.Close()
	customer := bus.Subscribe(CustomerChannel("cust-1"))
	defer customer.Close()

	delivered := bus.Broadcast(OperatorChannel, Event{Type: "new-order", OrderID: "ord-1"})
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	select {
	case ev := <-operator.C:
		if ev.Type != "new-order" || ev.OrderID != "ord-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("operator did not receive event")
	}

	select {
	case ev := <-customer.C:
		t.Fatalf("customer should not receive operator event, got %+v", ev)
	default:
	}
}

func TestBusBroadcastWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	if delivered := bus.Broadcast(CustomerChannel("nobody"), Event{Type: "order-status-update"}); delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}

func TestBusSkipsFullSubscribers(t *testing.T) {
	bus := NewBus(WithBufferSize(1))
	sub := bus.Subscribe(OperatorChannel)
	defer sub.Close()

	if delivered := bus.Broadcast(OperatorChannel, Event{Type: "first"}); delivered != 1 {
		t.Fatalf("first broadcast delivered = %d, want 1", delivered)
	}
	if delivered := bus.Broadcast(OperatorChannel, Event{Type: "second"}); delivered != 0 {
		t.Fatalf("second broadcast should be dropped for full buffer, got %d", delivered)
	}

	ev := <-sub.C
	if ev.Type != "first" {
		t.Fatalf("expected first event preserved, got %+v", ev)
	}
}

func TestBusCloseDetachesSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(CustomerChannel("cust-2"))
	if got := bus.SubscriberCount(CustomerChannel("cust-2")); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // idempotent

	if got := bus.SubscriberCount(CustomerChannel("cust-2")); got != 0 {
		t.Fatalf("subscriber count after close = %d, want 0", got)
	}
	if delivered := bus.Broadcast(CustomerChannel("cust-2"), Event{Type: "order-status-update"}); delivered != 0 {
		t.Fatalf("delivered to closed subscriber: %d", delivered)
	}
}

func TestBusCloseShutsDownAllSubscribers(t *testing.T) {
	bus := NewBus()

	operator := bus.Subscribe(OperatorChannel)
	customer := bus.Subscribe(CustomerChannel("cust-3"))

	bus.Close()

	if _, open := <-operator.C; open {
		t.Fatal("expected operator channel closed")
	}
	if _, open := <-customer.C; open {
		t.Fatal("expected customer channel closed")
	}
	if got := bus.SubscriberCount(OperatorChannel); got != 0 {
		t.Fatalf("subscribers after close = %d, want 0", got)
	}

	// Closing a detached subscription again must not panic.
	operator.Close()
}
