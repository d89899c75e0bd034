package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/oghouse/api/internal/domain"
	"github.com/oghouse/api/internal/notifications"
	"github.com/oghouse/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

// memOrderRepo is an in-memory stand-in for the Firestore repository.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	failInsert error
	failMutate error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *memOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsert != nil {
		return r.failInsert
	}
	if _, ok := r.orders[order.ID]; ok {
		return &stubRepoError{conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, &stubRepoError{notFound: true}
	}
	return order, nil
}

func (r *memOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (r *memOrderRepo) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMutate != nil {
		return domain.Order{}, r.failMutate
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, &stubRepoError{notFound: true}
	}
	if err := fn(&order); err != nil {
		return domain.Order{}, err
	}
	r.orders[orderID] = order
	return order, nil
}

func (r *memOrderRepo) Delete(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return &stubRepoError{notFound: true}
	}
	delete(r.orders, orderID)
	return nil
}

type capturedNotification struct {
	channel    string
	customerID string
	event      notifications.Event
}

type stubNotifier struct {
	mu     sync.Mutex
	events []capturedNotification
}

func (n *stubNotifier) NotifyOperators(ctx context.Context, event notifications.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, capturedNotification{channel: "operators", event: event})
}

func (n *stubNotifier) NotifyCustomer(ctx context.Context, customerID string, event notifications.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, capturedNotification{channel: "customer", customerID: customerID, event: event})
}

func (n *stubNotifier) captured() []capturedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]capturedNotification(nil), n.events...)
}

type stubEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *stubEvents) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestOrderService(t *testing.T, repo *memOrderRepo, notifier Notifier, events OrderEventPublisher) OrderService {
	t.Helper()
	counter := 0
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Clock:  fixedClock(testNow),
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("TEST%04d", counter)
		},
		Notifier: notifier,
		Events:   events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func placeTestOrder(t *testing.T, svc OrderService) domain.Order {
	t.Helper()
	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CustomerID:   "cust-1",
		CustomerName: "Asha Rao",
		Items: []PlaceOrderItem{
			{ItemRef: "menu-7", Name: "Masala Dosa", Quantity: 2, UnitPrice: 120},
			{ItemRef: "menu-9", Name: "Filter Coffee", Quantity: 1, UnitPrice: 40},
		},
		Delivery: DeliveryInput{Address: "14 Brigade Road", City: "Bengaluru", Pincode: "560001"},
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func TestPlaceOrder(t *testing.T) {
	repo := newMemOrderRepo()
	notifier := &stubNotifier{}
	events := &stubEvents{}
	svc := newTestOrderService(t, repo, notifier, events)

	order := placeTestOrder(t, svc)

	if order.ID != "ord_TEST0001" {
		t.Fatalf("order id = %s", order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want Pending", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("payment status = %s, want Pending", order.PaymentStatus)
	}
	if order.TotalAmount != 280 {
		t.Fatalf("total = %v, want 280", order.TotalAmount)
	}
	if len(order.Items) != 2 || order.Items[0].LineTotal != 240 {
		t.Fatalf("unexpected items: %+v", order.Items)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("expected seeded history, got %+v", order.StatusHistory)
	}
	if !order.StatusHistory[0].Timestamp.Equal(testNow) {
		t.Fatalf("history timestamp = %s", order.StatusHistory[0].Timestamp)
	}

	captured := notifier.captured()
	if len(captured) != 1 || captured[0].channel != "operators" {
		t.Fatalf("expected one operator notification, got %+v", captured)
	}
	if captured[0].event.Type != "new-order" {
		t.Fatalf("event type = %s", captured[0].event.Type)
	}

	if len(events.events) != 1 || events.events[0].Type != orderEventPlaced {
		t.Fatalf("expected placed event, got %+v", events.events)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newTestOrderService(t, newMemOrderRepo(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  PlaceOrderCommand
	}{
		{"missing name", PlaceOrderCommand{
			Items:    []PlaceOrderItem{{Name: "Dosa", Quantity: 1, UnitPrice: 100}},
			Delivery: DeliveryInput{Address: "x"},
		}},
		{"no items", PlaceOrderCommand{
			CustomerName: "Asha",
			Delivery:     DeliveryInput{Address: "x"},
		}},
		{"missing address", PlaceOrderCommand{
			CustomerName: "Asha",
			Items:        []PlaceOrderItem{{Name: "Dosa", Quantity: 1, UnitPrice: 100}},
		}},
		{"zero quantity", PlaceOrderCommand{
			CustomerName: "Asha",
			Items:        []PlaceOrderItem{{Name: "Dosa", Quantity: 0, UnitPrice: 100}},
			Delivery:     DeliveryInput{Address: "x"},
		}},
		{"zero total", PlaceOrderCommand{
			CustomerName: "Asha",
			Items:        []PlaceOrderItem{{Name: "Dosa", Quantity: 1, UnitPrice: 0}},
			Delivery:     DeliveryInput{Address: "x"},
		}},
	}
	for _, tc := range cases {
		if _, err := svc.PlaceOrder(ctx, tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}

func TestPlaceOrderSanitizesText(t *testing.T) {
	svc := newTestOrderService(t, newMemOrderRepo(), nil, nil)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CustomerName: "<script>alert(1)</script>Asha",
		Items:        []PlaceOrderItem{{Name: "Dosa<b>!</b>", Quantity: 1, UnitPrice: 100}},
		Delivery:     DeliveryInput{Address: "14 Brigade Road"},
		SpecialInstructions: "<img src=x onerror=alert(1)>extra chutney",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.CustomerName != "Asha" {
		t.Fatalf("customer name = %q", order.CustomerName)
	}
	if order.Items[0].Name != "Dosa!" {
		t.Fatalf("item name = %q", order.Items[0].Name)
	}
	if order.SpecialInstructions != "extra chutney" {
		t.Fatalf("special instructions = %q", order.SpecialInstructions)
	}
}

func TestPlaceOrderNotificationFailureDoesNotPropagate(t *testing.T) {
	repo := newMemOrderRepo()
	events := &stubEvents{err: errors.New("broker down")}
	svc := newTestOrderService(t, repo, nil, events)

	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		CustomerName: "Asha",
		Items:        []PlaceOrderItem{{Name: "Dosa", Quantity: 1, UnitPrice: 100}},
		Delivery:     DeliveryInput{Address: "x"},
	}); err != nil {
		t.Fatalf("publish failure must not fail placement: %v", err)
	}
}

func TestUpdateStatusAppendsHistory(t *testing.T) {
	repo := newMemOrderRepo()
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, repo, notifier, nil)
	order := placeTestOrder(t, svc)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusAccepted,
		ActorID: "staff-1",
		Notes:   "eta 30m",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderStatusAccepted {
		t.Fatalf("status = %s", updated.Status)
	}
	if len(updated.StatusHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(updated.StatusHistory))
	}
	last := updated.StatusHistory[1]
	if last.Status != domain.OrderStatusAccepted || last.ActorID != "staff-1" || last.Notes != "eta 30m" {
		t.Fatalf("unexpected history entry: %+v", last)
	}

	captured := notifier.captured()
	if len(captured) != 2 {
		t.Fatalf("expected placement + status notifications, got %d", len(captured))
	}
	statusEvent := captured[1]
	if statusEvent.channel != "customer" || statusEvent.customerID != "cust-1" {
		t.Fatalf("unexpected notification target: %+v", statusEvent)
	}
	if statusEvent.event.Message != "Your order has been accepted and is being prepared!" {
		t.Fatalf("unexpected message: %q", statusEvent.event.Message)
	}
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	repo := newMemOrderRepo()
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, repo, notifier, nil)
	order := placeTestOrder(t, svc)

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusPending,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if len(updated.StatusHistory) != 1 {
		t.Fatalf("no-op must not append history, got %d entries", len(updated.StatusHistory))
	}
	if len(notifier.captured()) != 1 {
		t.Fatal("no-op must not emit a second notification")
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, newMemOrderRepo(), nil, nil)
	if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_x",
		Status:  "Shipped",
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc := newTestOrderService(t, newMemOrderRepo(), nil, nil)
	if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: "ord_missing",
		Status:  domain.OrderStatusAccepted,
	}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusFallbackMessage(t *testing.T) {
	repo := newMemOrderRepo()
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, repo, notifier, nil)
	order := placeTestOrder(t, svc)

	if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusReadyForPickup,
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	captured := notifier.captured()
	got := captured[len(captured)-1].event.Message
	if got != "Order status updated to Ready for Pickup" {
		t.Fatalf("fallback message = %q", got)
	}
}

func TestMarkDelivered(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil, nil)
	order := placeTestOrder(t, svc)

	updated, err := svc.MarkDelivered(context.Background(), MarkDeliveredCommand{
		OrderID:     order.ID,
		ActorID:     "courier-3",
		CourierNote: "left at door",
	})
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if updated.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s", updated.Status)
	}
	if updated.Delivery.ActualDeliveryTime == nil || !updated.Delivery.ActualDeliveryTime.Equal(testNow) {
		t.Fatalf("actual delivery time = %v", updated.Delivery.ActualDeliveryTime)
	}
	if updated.Delivery.CourierNote != "left at door" {
		t.Fatalf("courier note = %q", updated.Delivery.CourierNote)
	}
}

func TestTrackOrder(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil, nil)
	order := placeTestOrder(t, svc)

	if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: order.ID,
		Status:  domain.OrderStatusPreparing,
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	tracking, err := svc.TrackOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("track order: %v", err)
	}
	if tracking.Metrics.CurrentStatus != domain.OrderStatusPreparing {
		t.Fatalf("current status = %s", tracking.Metrics.CurrentStatus)
	}
	if tracking.Metrics.ProgressPercentage != 33 {
		t.Fatalf("progress = %d, want 33", tracking.Metrics.ProgressPercentage)
	}
}

func TestListOrdersFilter(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil, nil)
	first := placeTestOrder(t, svc)
	placeTestOrder(t, svc)

	if _, err := svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: first.ID,
		Status:  domain.OrderStatusAccepted,
	}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	accepted, err := svc.ListOrders(context.Background(), OrderListFilter{Status: domain.OrderStatusAccepted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accepted) != 1 || accepted[0].ID != first.ID {
		t.Fatalf("unexpected filtered listing: %+v", accepted)
	}

	if _, err := svc.ListOrders(context.Background(), OrderListFilter{Status: "Bogus"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestDeleteOrder(t *testing.T) {
	repo := newMemOrderRepo()
	svc := newTestOrderService(t, repo, nil, nil)
	order := placeTestOrder(t, svc)

	if err := svc.DeleteOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteOrder(context.Background(), order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
