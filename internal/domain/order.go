package domain

import (
	"math"
	"time"
)

// OrderStatus enumerates the lifecycle states an order can hold. The wire
// values match what the storefront and kitchen dashboard display.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "Pending"
	OrderStatusAccepted       OrderStatus = "Accepted"
	OrderStatusPreparing      OrderStatus = "Preparing"
	OrderStatusReadyForPickup OrderStatus = "Ready for Pickup"
	OrderStatusOnTheWay       OrderStatus = "On The Way"
	OrderStatusDelivered      OrderStatus = "Delivered"
	OrderStatusCompleted      OrderStatus = "Completed"
	OrderStatusCancelled      OrderStatus = "Cancelled"
)

// PaymentStatus tracks reconciliation with the payment gateway.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusFailed   PaymentStatus = "Failed"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

// progressOrder is the canonical forward ordering used for progress reporting.
// Cancelled is terminal but deliberately excluded: a cancelled order reports 0%.
var progressOrder = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
	OrderStatusReadyForPickup,
	OrderStatusOnTheWay,
	OrderStatusDelivered,
	OrderStatusCompleted,
}

var knownStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:        {},
	OrderStatusAccepted:       {},
	OrderStatusPreparing:      {},
	OrderStatusReadyForPickup: {},
	OrderStatusOnTheWay:       {},
	OrderStatusDelivered:      {},
	OrderStatusCompleted:      {},
	OrderStatusCancelled:      {},
}

// IsValidOrderStatus reports whether the value is one of the known statuses.
func IsValidOrderStatus(status OrderStatus) bool {
	_, ok := knownStatuses[status]
	return ok
}

// OrderItem is the order-time snapshot of a single catalog line. Name and unit
// price are captured at placement and never recomputed from the catalog; the
// order's monetary history is immutable regardless of later price changes.
type OrderItem struct {
	ItemRef   string  `json:"itemRef"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

// StatusHistoryEntry records one value the order's status has held.
type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	ActorID   string      `json:"actorId,omitempty"`
	Notes     string      `json:"notes,omitempty"`
}

// DeliveryDetails carries the drop-off information for delivery orders.
type DeliveryDetails struct {
	Address            string     `json:"address"`
	City               string     `json:"city,omitempty"`
	Pincode            string     `json:"pincode,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	EstimatedTime      *time.Time `json:"estimatedTime,omitempty"`
	ActualDeliveryTime *time.Time `json:"actualDeliveryTime,omitempty"`
	CourierNote        string     `json:"courierNote,omitempty"`
}

// PaymentDetails mirrors gateway truth for the order's payment. All fields stay
// unset until the corresponding gateway event has been reconciled. PaidAt and
// FailedAt are mutually exclusive for a given payment id, and refund fields are
// only ever set once a captured payment exists.
type PaymentDetails struct {
	GatewayPaymentID string     `json:"gatewayPaymentId,omitempty"`
	GatewayOrderID   string     `json:"gatewayOrderId,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	FailedAt         *time.Time `json:"failedAt,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	ErrorDescription string     `json:"errorDescription,omitempty"`
	RefundID         string     `json:"refundId,omitempty"`
	RefundedAt       *time.Time `json:"refundedAt,omitempty"`
	RefundAmount     float64    `json:"refundAmount,omitempty"`
	RefundReason     string     `json:"refundReason,omitempty"`
}

// Order is the aggregate root for the ordering core. Status moves only through
// the lifecycle engine and payment fields only through the reconciliation
// service; StatusHistory is append-only and trails every value Status has held.
type Order struct {
	ID                  string               `json:"id"`
	CustomerID          string               `json:"customerId,omitempty"`
	CustomerName        string               `json:"customerName"`
	CustomerEmail       string               `json:"customerEmail,omitempty"`
	CustomerPhone       string               `json:"customerPhone,omitempty"`
	Items               []OrderItem          `json:"items"`
	TotalAmount         float64              `json:"totalAmount"`
	Status              OrderStatus          `json:"status"`
	StatusHistory       []StatusHistoryEntry `json:"statusHistory"`
	Delivery            DeliveryDetails      `json:"deliveryDetails"`
	Payment             PaymentDetails       `json:"paymentDetails"`
	PaymentStatus       PaymentStatus        `json:"paymentStatus"`
	SpecialInstructions string               `json:"specialInstructions,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// CurrentHistoryEntry returns the trailing status history entry, if any.
func (o Order) CurrentHistoryEntry() (StatusHistoryEntry, bool) {
	if len(o.StatusHistory) == 0 {
		return StatusHistoryEntry{}, false
	}
	return o.StatusHistory[len(o.StatusHistory)-1], true
}

// IsPaid reports whether the gateway has confirmed capture for this order.
func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// TrackingMetrics holds the derived timing figures surfaced on the tracking
// endpoint. All values are computed from StatusHistory; nothing is persisted.
type TrackingMetrics struct {
	CurrentStatus                OrderStatus `json:"currentStatus"`
	TotalDurationMinutes         int         `json:"totalDurationMinutes"`
	CurrentStatusDurationMinutes int         `json:"currentStatusDurationMinutes"`
	ProgressPercentage           int         `json:"progressPercentage"`
	EstimatedDelivery            *time.Time  `json:"estimatedDelivery,omitempty"`
	IsDelivered                  bool        `json:"isDelivered"`
	IsCancelled                  bool        `json:"isCancelled"`
}

const defaultAcceptedETA = 30 * time.Minute

// Tracking derives the metrics for the order as of now.
func (o Order) Tracking(now time.Time) TrackingMetrics {
	metrics := TrackingMetrics{
		CurrentStatus: o.Status,
		IsDelivered:   o.Status == OrderStatusDelivered || o.Status == OrderStatusCompleted,
		IsCancelled:   o.Status == OrderStatusCancelled,
	}

	if len(o.StatusHistory) > 0 {
		first := o.StatusHistory[0]
		last := o.StatusHistory[len(o.StatusHistory)-1]
		metrics.TotalDurationMinutes = minutesBetween(first.Timestamp, now)
		metrics.CurrentStatusDurationMinutes = minutesBetween(last.Timestamp, now)
	}

	metrics.ProgressPercentage = ProgressPercentage(o.Status)

	switch {
	case o.Delivery.EstimatedTime != nil:
		metrics.EstimatedDelivery = o.Delivery.EstimatedTime
	case o.Status == OrderStatusAccepted:
		eta := now.Add(defaultAcceptedETA)
		metrics.EstimatedDelivery = &eta
	}

	return metrics
}

// ProgressPercentage maps the status to its position in the canonical forward
// ordering, rounded to the nearest whole percent. Statuses outside the ordering
// (Cancelled, unknown) report zero.
func ProgressPercentage(status OrderStatus) int {
	for i, s := range progressOrder {
		if s == status {
			return int(math.Round(float64(i) / float64(len(progressOrder)-1) * 100))
		}
	}
	return 0
}

func minutesBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Minutes())
}
