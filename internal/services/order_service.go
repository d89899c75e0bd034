package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/oghouse/api/internal/domain"
	"github.com/oghouse/api/internal/notifications"
	"github.com/oghouse/api/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status.changed"
	orderEventDeleted       = "order.deleted"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates concurrent writes or duplicates collided.
	ErrOrderConflict = errors.New("order: conflict")
)

// Status changes are deliberately permissive: any known status may follow any
// other, matching how the kitchen dashboard is operated today. Only unknown
// values are rejected.
var statusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusAccepted:  "Your order has been accepted and is being prepared!",
	domain.OrderStatusPreparing: "Your order is being prepared in the kitchen!",
	domain.OrderStatusOnTheWay:  "Your order is on the way!",
	domain.OrderStatusDelivered: "Your order has been delivered. Enjoy your meal!",
	domain.OrderStatusCancelled: "Your order has been cancelled.",
}

func statusMessage(status domain.OrderStatus) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("Order status updated to %s", status)
}

// Notifier pushes ephemeral events to connected observers. Implementations
// must never block the caller.
type Notifier interface {
	NotifyOperators(ctx context.Context, event notifications.Event)
	NotifyCustomer(ctx context.Context, customerID string, event notifications.Event)
}

// OrderEventPublisher publishes order domain events for downstream consumers
// such as the email pipeline.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	CustomerID     string         `json:"customerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// textSanitizer strips markup from free-text fields before they are stored or
// pushed to dashboards.
var textSanitizer = bluemonday.StrictPolicy()

func sanitizeText(value string) string {
	return strings.TrimSpace(textSanitizer.Sanitize(value))
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Notifier    Notifier
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
	notifier Notifier
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		notifier: deps.Notifier,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	customerName := sanitizeText(cmd.CustomerName)
	if customerName == "" {
		return domain.Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	address := sanitizeText(cmd.Delivery.Address)
	if address == "" {
		return domain.Order{}, fmt.Errorf("%w: delivery address is required", ErrOrderInvalidInput)
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	total := 0.0
	for i, item := range cmd.Items {
		if item.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: item %d quantity must be at least 1", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return domain.Order{}, fmt.Errorf("%w: item %d unit price must not be negative", ErrOrderInvalidInput, i)
		}
		lineTotal := item.UnitPrice * float64(item.Quantity)
		items = append(items, domain.OrderItem{
			ItemRef:   strings.TrimSpace(item.ItemRef),
			Name:      sanitizeText(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
		})
		total += lineTotal
	}
	if total <= 0 {
		return domain.Order{}, fmt.Errorf("%w: order total must be positive", ErrOrderInvalidInput)
	}

	now := s.now()
	order := domain.Order{
		ID:            s.nextOrderID(),
		CustomerID:    strings.TrimSpace(cmd.CustomerID),
		CustomerName:  customerName,
		CustomerEmail: strings.TrimSpace(cmd.CustomerEmail),
		CustomerPhone: strings.TrimSpace(cmd.CustomerPhone),
		Items:         items,
		TotalAmount:   total,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Timestamp: now},
		},
		Delivery: domain.DeliveryDetails{
			Address: address,
			City:    sanitizeText(cmd.Delivery.City),
			Pincode: strings.TrimSpace(cmd.Delivery.Pincode),
			Phone:   strings.TrimSpace(cmd.Delivery.Phone),
		},
		SpecialInstructions: sanitizeText(cmd.SpecialInstructions),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.notifyOperators(ctx, notifications.Event{
		Type:    "new-order",
		OrderID: order.ID,
		Status:  string(order.Status),
		Message: fmt.Sprintf("New order placed by %s for ₹%.2f", order.CustomerName, order.TotalAmount),
		Payload: map[string]any{
			"customerName": order.CustomerName,
			"totalAmount":  order.TotalAmount,
			"items":        len(order.Items),
		},
		Timestamp: now,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error) {
	if filter.Status != "" && !domain.IsValidOrderStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, filter.Status)
	}

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status:     filter.Status,
		CustomerID: strings.TrimSpace(filter.CustomerID),
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	return s.applyStatus(ctx, cmd, nil)
}

func (s *orderService) MarkDelivered(ctx context.Context, cmd MarkDeliveredCommand) (domain.Order, error) {
	return s.applyStatus(ctx, UpdateStatusCommand{
		OrderID: cmd.OrderID,
		Status:  domain.OrderStatusDelivered,
		ActorID: cmd.ActorID,
		Notes:   cmd.CourierNote,
	}, func(order *domain.Order, now time.Time) {
		order.Delivery.ActualDeliveryTime = &now
		if note := sanitizeText(cmd.CourierNote); note != "" {
			order.Delivery.CourierNote = note
		}
	})
}

func (s *orderService) applyStatus(ctx context.Context, cmd UpdateStatusCommand, extra func(order *domain.Order, now time.Time)) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.IsValidOrderStatus(cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.now()
	var previous domain.OrderStatus
	changed := false

	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		previous = order.Status
		if order.Status == cmd.Status {
			return nil
		}
		changed = true
		order.Status = cmd.Status
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    cmd.Status,
			Timestamp: now,
			ActorID:   strings.TrimSpace(cmd.ActorID),
			Notes:     sanitizeText(cmd.Notes),
		})
		order.UpdatedAt = now
		if extra != nil {
			extra(order, now)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !changed {
		return order, nil
	}

	s.notifyCustomer(ctx, order.CustomerID, notifications.Event{
		Type:      "order-status-update",
		OrderID:   order.ID,
		Status:    string(order.Status),
		Message:   statusMessage(order.Status),
		Timestamp: now,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
	})

	return order, nil
}

func (s *orderService) TrackOrder(ctx context.Context, orderID string) (OrderTracking, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return OrderTracking{}, err
	}
	return OrderTracking{
		Order:   order,
		Metrics: order.Tracking(s.now()),
	}, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventDeleted,
		OrderID:    orderID,
		OccurredAt: s.now(),
	})
	return nil
}

// notifyOperators pushes best effort; a slow or absent bus never fails the
// calling operation.
func (s *orderService) notifyOperators(ctx context.Context, event notifications.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyOperators(ctx, event)
}

func (s *orderService) notifyCustomer(ctx context.Context, customerID string, event notifications.Event) {
	if s.notifier == nil || strings.TrimSpace(customerID) == "" {
		return
	}
	s.notifier.NotifyCustomer(ctx, customerID, event)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}
