package services

import (
	"context"

	domain "github.com/oghouse/api/internal/domain"
)

// PlaceOrderItem is a single requested line at placement time. Name and unit
// price are snapshotted onto the order and never recomputed.
type PlaceOrderItem struct {
	ItemRef   string
	Name      string
	Quantity  int
	UnitPrice float64
}

// DeliveryInput carries drop-off details supplied at placement.
type DeliveryInput struct {
	Address string
	City    string
	Pincode string
	Phone   string
}

// PlaceOrderCommand captures everything needed to place a new order.
type PlaceOrderCommand struct {
	CustomerID          string
	CustomerName        string
	CustomerEmail       string
	CustomerPhone       string
	Items               []PlaceOrderItem
	Delivery            DeliveryInput
	SpecialInstructions string
}

// UpdateStatusCommand moves an order through its lifecycle.
type UpdateStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	ActorID string
	Notes   string
}

// MarkDeliveredCommand closes out a delivery, stamping the actual drop-off time.
type MarkDeliveredCommand struct {
	OrderID     string
	ActorID     string
	CourierNote string
}

// OrderListFilter narrows operator listings.
type OrderListFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	Limit      int
}

// OrderTracking bundles the order with its derived tracking metrics.
type OrderTracking struct {
	Order   domain.Order
	Metrics domain.TrackingMetrics
}

// OrderService owns the order lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	MarkDelivered(ctx context.Context, cmd MarkDeliveredCommand) (domain.Order, error)
	TrackOrder(ctx context.Context, orderID string) (OrderTracking, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// CreateIntentCommand opens a payment with the gateway for an order. Currency
// overrides the configured default when set.
type CreateIntentCommand struct {
	OrderID  string
	Currency string
}

// PaymentIntent is returned to the storefront to drive the client-side capture.
type PaymentIntent struct {
	OrderID        string
	GatewayOrderID string
	ClientSecret   string
	Amount         int64
	Currency       string
}

// ConfirmPaymentCommand carries the storefront's post-capture confirmation.
type ConfirmPaymentCommand struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// PaymentSuccessCommand records a gateway-confirmed capture.
type PaymentSuccessCommand struct {
	OrderID          string
	GatewayPaymentID string
}

// PaymentFailureCommand records a gateway-reported failure.
type PaymentFailureCommand struct {
	OrderID          string
	GatewayPaymentID string
	ErrorCode        string
	ErrorDescription string
}

// RefundCommand reverses a captured payment. A nil Amount refunds in full.
type RefundCommand struct {
	OrderID string
	Amount  *float64
	Reason  string
	ActorID string
}

// PaymentStatusView is the read model for the payment status endpoint.
type PaymentStatusView struct {
	OrderID       string
	PaymentStatus domain.PaymentStatus
	Details       domain.PaymentDetails
	TotalAmount   float64
}

// PaymentService reconciles orders with gateway truth.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (PaymentIntent, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error)
	ApplyPaymentSuccess(ctx context.Context, cmd PaymentSuccessCommand) (domain.Order, error)
	ApplyPaymentFailure(ctx context.Context, cmd PaymentFailureCommand) (domain.Order, error)
	Refund(ctx context.Context, cmd RefundCommand) (domain.Order, error)
	HandleWebhookEvent(ctx context.Context, body []byte, signature string) error
	PaymentStatus(ctx context.Context, orderID string) (PaymentStatusView, error)
}
