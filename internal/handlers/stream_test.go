package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oghouse/api/internal/notifications"
)

func newStreamRouter(bus *notifications.Bus, opts ...StreamOption) chi.Router {
	handler := NewStreamHandlers(nil, bus, opts...)
	router := chi.NewRouter()
	router.Route("/events", handler.Routes)
	return router
}

// waitForSubscriber polls the bus until the channel has a live subscriber,
// delivering the event to it.
func waitForSubscriber(t *testing.T, bus *notifications.Bus, channel string, event notifications.Event) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Broadcast(channel, event) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on channel %s", channel)
}

func TestStreamHandlersDeliversCustomerEvents(t *testing.T) {
	bus := notifications.NewBus()
	router := newStreamRouter(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events/", nil).WithContext(ctx)
	req = customerRequest(req, "cust-1")

	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(rr, req)
	}()

	event := notifications.Event{
		Type:    "order.status.changed",
		OrderID: "ord_123",
		Status:  "Accepted",
	}
	waitForSubscriber(t, bus, notifications.CustomerChannel("cust-1"), event)

	// The customer stream must not be attached to the operator channel.
	if n := bus.Broadcast(notifications.OperatorChannel, event); n != 0 {
		t.Fatalf("expected no operator subscribers, got %d", n)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rr.Body.String()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %s", got)
	}
	if !strings.Contains(body, "event: order.status.changed") {
		t.Fatalf("expected event line in body, got %q", body)
	}
	if !strings.Contains(body, `"orderId":"ord_123"`) {
		t.Fatalf("expected event payload in body, got %q", body)
	}
}

func TestStreamHandlersOperatorJoinsSharedChannel(t *testing.T) {
	bus := notifications.NewBus()
	router := newStreamRouter(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events/", nil).WithContext(ctx)
	req = operatorRequest(req, "op-1")

	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(rr, req)
	}()

	event := notifications.Event{Type: "order.placed", OrderID: "ord_777"}
	waitForSubscriber(t, bus, notifications.OperatorChannel, event)

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(rr.Body.String(), "event: order.placed") {
		t.Fatalf("expected operator event in body, got %q", rr.Body.String())
	}
}

func TestStreamHandlersHeartbeat(t *testing.T) {
	bus := notifications.NewBus()
	router := newStreamRouter(bus, WithStreamHeartbeat(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events/", nil).WithContext(ctx)
	req = customerRequest(req, "cust-1")

	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(rr, req)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(rr.Body.String(), ": keep-alive") {
		t.Fatalf("expected heartbeat comment, got %q", rr.Body.String())
	}
}

func TestStreamHandlersRequiresIdentity(t *testing.T) {
	router := newStreamRouter(notifications.NewBus())

	req := httptest.NewRequest(http.MethodGet, "/events/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestStreamHandlersWithoutBus(t *testing.T) {
	router := newStreamRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/events/", nil)
	req = customerRequest(req, "cust-1")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
