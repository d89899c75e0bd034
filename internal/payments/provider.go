package payments

import (
	"context"
	"math"
	"time"
)

// Status enumerates the normalised payment states reported by the gateway.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// IntentRequest captures the payload required to open a payment with the
// gateway. Amount is in the smallest currency unit.
type IntentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	Receipt        string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the gateway-side counterpart of an order awaiting payment.
type Intent struct {
	GatewayOrderID string
	ClientSecret   string
	Amount         int64
	Currency       string
	Status         Status
	CreatedAt      time.Time
}

// RefundRequest defines a gateway refund attempt. A nil Amount refunds the
// full captured amount.
type RefundRequest struct {
	PaymentID      string
	Amount         *int64
	Reason         string
	Metadata       map[string]string
	IdempotencyKey string
}

// Refund normalises the gateway refund record.
type Refund struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    Status
	CreatedAt time.Time
}

// Provider defines the contract for gateway adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}

// ToMinorUnits converts a major-unit amount to the gateway's smallest currency
// unit, rounding to the nearest whole unit.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts a gateway minor-unit amount back to major units.
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
