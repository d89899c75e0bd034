package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oghouse/api/internal/domain"
	"github.com/oghouse/api/internal/notifications"
	"github.com/oghouse/api/internal/payments"
	"github.com/oghouse/api/internal/repositories"
)

const (
	webhookEventPaymentCaptured = "payment.captured"
	webhookEventPaymentFailed   = "payment.failed"
	webhookEventRefundProcessed = "refund.processed"

	paymentEventSucceeded = "payment.succeeded"
	paymentEventFailed    = "payment.failed"
	paymentEventRefunded  = "payment.refunded"

	defaultCurrency = "INR"

	// gatewayCallTimeout bounds outbound gateway calls so a stalled PSP never
	// pins a request for its full server timeout.
	gatewayCallTimeout = 10 * time.Second
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentConflict indicates the order's payment state forbids the operation.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentSignatureInvalid indicates a confirmation or webhook signature did not verify.
	ErrPaymentSignatureInvalid = errors.New("payment: invalid signature")
	// ErrPaymentGateway wraps failures reported by the payment gateway.
	ErrPaymentGateway = errors.New("payment: gateway error")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Provider      payments.Provider
	Currency      string
	KeySecret     string
	WebhookSecret string
	Clock         func() time.Time
	Notifier      Notifier
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders        repositories.OrderRepository
	provider      payments.Provider
	currency      string
	keySecret     string
	webhookSecret string
	clock         func() time.Time
	notifier      Notifier
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: gateway provider is required")
	}
	if strings.TrimSpace(deps.KeySecret) == "" {
		return nil, errors.New("payment service: key secret is required")
	}
	if strings.TrimSpace(deps.WebhookSecret) == "" {
		return nil, errors.New("payment service: webhook secret is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:        deps.Orders,
		provider:      deps.Provider,
		currency:      currency,
		keySecret:     strings.TrimSpace(deps.KeySecret),
		webhookSecret: strings.TrimSpace(deps.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		notifier: deps.Notifier,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

// CreateIntent opens a gateway payment for the order's total. The order itself
// is left untouched; reconciliation happens when the gateway confirms.
func (s *paymentService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (PaymentIntent, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentIntent{}, s.mapRepositoryError(err)
	}
	if order.IsPaid() {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentConflict, orderID)
	}
	if order.TotalAmount <= 0 {
		return PaymentIntent{}, fmt.Errorf("%w: order total must be positive", ErrPaymentInvalidInput)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	} else if !isCurrencyCode(currency) {
		return PaymentIntent{}, fmt.Errorf("%w: unsupported currency %q", ErrPaymentInvalidInput, cmd.Currency)
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	intent, err := s.provider.CreateIntent(gatewayCtx, payments.IntentRequest{
		OrderID:       order.ID,
		Amount:        payments.ToMinorUnits(order.TotalAmount),
		Currency:      currency,
		Receipt:       "rcpt_" + order.ID,
		CustomerEmail: order.CustomerEmail,
		Metadata:      map[string]string{"orderId": order.ID},
	})
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	return PaymentIntent{
		OrderID:        order.ID,
		GatewayOrderID: intent.GatewayOrderID,
		ClientSecret:   intent.ClientSecret,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
	}, nil
}

// ConfirmPayment validates the storefront's post-capture signature before any
// state changes. An order is never marked paid on client assertion alone.
func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	if orderID == "" || paymentID == "" || gatewayOrderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id, gateway order id and payment id are required", ErrPaymentInvalidInput)
	}

	if !payments.VerifyConfirmation(s.keySecret, gatewayOrderID, paymentID, cmd.Signature) {
		s.logger(ctx, "payment.confirmation.signature.invalid", map[string]any{
			"order":   orderID,
			"payment": paymentID,
		})
		return domain.Order{}, ErrPaymentSignatureInvalid
	}

	return s.applySuccess(ctx, orderID, paymentID, gatewayOrderID)
}

// ApplyPaymentSuccess records a gateway-confirmed capture. Replays with the
// same payment id are no-ops.
func (s *paymentService) ApplyPaymentSuccess(ctx context.Context, cmd PaymentSuccessCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	if orderID == "" || paymentID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id and payment id are required", ErrPaymentInvalidInput)
	}
	return s.applySuccess(ctx, orderID, paymentID, "")
}

func (s *paymentService) applySuccess(ctx context.Context, orderID, paymentID, gatewayOrderID string) (domain.Order, error) {
	now := s.now()
	applied := false

	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if order.IsPaid() {
			if order.Payment.GatewayPaymentID == paymentID {
				return nil
			}
			return fmt.Errorf("%w: order %s already paid with payment %s", ErrPaymentConflict, orderID, order.Payment.GatewayPaymentID)
		}
		applied = true
		order.PaymentStatus = domain.PaymentStatusPaid
		order.Payment.GatewayPaymentID = paymentID
		if gatewayOrderID != "" {
			order.Payment.GatewayOrderID = gatewayOrderID
		}
		order.Payment.PaidAt = &now
		order.Payment.FailedAt = nil
		order.Payment.ErrorCode = ""
		order.Payment.ErrorDescription = ""
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentConflict) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !applied {
		return order, nil
	}

	s.notifyCustomer(ctx, order.CustomerID, notifications.Event{
		Type:      "payment-update",
		OrderID:   order.ID,
		Status:    string(order.PaymentStatus),
		Message:   "Payment received for your order!",
		Timestamp: now,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          paymentEventSucceeded,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata:      map[string]any{"paymentId": paymentID},
	})

	return order, nil
}

// ApplyPaymentFailure records a gateway-reported failure. A failure event for
// an already-paid order is logged as an anomaly and ignored; Paid never
// downgrades to Failed.
func (s *paymentService) ApplyPaymentFailure(ctx context.Context, cmd PaymentFailureCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	now := s.now()
	applied := false

	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if order.IsPaid() {
			s.logger(ctx, "payment.failure.ignored", map[string]any{
				"order":   orderID,
				"payment": paymentID,
				"reason":  "order already paid",
			})
			return nil
		}
		applied = true
		order.PaymentStatus = domain.PaymentStatusFailed
		order.Payment.GatewayPaymentID = paymentID
		order.Payment.FailedAt = &now
		order.Payment.ErrorCode = strings.TrimSpace(cmd.ErrorCode)
		order.Payment.ErrorDescription = strings.TrimSpace(cmd.ErrorDescription)
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !applied {
		return order, nil
	}

	s.notifyCustomer(ctx, order.CustomerID, notifications.Event{
		Type:      "payment-update",
		OrderID:   order.ID,
		Status:    string(order.PaymentStatus),
		Message:   "Payment failed. Please try again.",
		Timestamp: now,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          paymentEventFailed,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentId": paymentID,
			"errorCode": cmd.ErrorCode,
		},
	})

	return order, nil
}

// Refund reverses a captured payment. The gateway call happens first; the
// order is only updated once the gateway accepts the refund.
func (s *paymentService) Refund(ctx context.Context, cmd RefundCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !order.IsPaid() {
		return domain.Order{}, fmt.Errorf("%w: order %s is not paid", ErrPaymentConflict, orderID)
	}
	if order.Payment.RefundID != "" {
		return domain.Order{}, fmt.Errorf("%w: order %s already refunded", ErrPaymentConflict, orderID)
	}

	refundAmount := order.TotalAmount
	var minorAmount *int64
	if cmd.Amount != nil {
		if *cmd.Amount <= 0 || *cmd.Amount > order.TotalAmount {
			return domain.Order{}, fmt.Errorf("%w: refund amount out of range", ErrPaymentInvalidInput)
		}
		refundAmount = *cmd.Amount
		minor := payments.ToMinorUnits(refundAmount)
		minorAmount = &minor
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	refund, err := s.provider.Refund(gatewayCtx, payments.RefundRequest{
		PaymentID:      order.Payment.GatewayPaymentID,
		Amount:         minorAmount,
		Reason:         cmd.Reason,
		Metadata:       map[string]string{"orderId": order.ID},
		IdempotencyKey: "refund-" + order.ID,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	return s.recordRefund(ctx, orderID, refund.ID, refundAmount, cmd.Reason)
}

// recordRefund applies a gateway-accepted refund under the order transaction.
// The paid and duplicate checks run inside the closure so concurrent writers
// serialise on the order document rather than on a stale read.
func (s *paymentService) recordRefund(ctx context.Context, orderID, refundID string, amount float64, reason string) (domain.Order, error) {
	now := s.now()
	applied := false
	unmatched := false

	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		applied = false
		unmatched = false
		if order.Payment.RefundID == refundID && order.PaymentStatus == domain.PaymentStatusRefunded {
			return nil
		}
		if order.Payment.RefundID != "" {
			return fmt.Errorf("%w: order %s already refunded with %s", ErrPaymentConflict, order.ID, order.Payment.RefundID)
		}
		if !order.IsPaid() {
			unmatched = true
			return nil
		}
		applied = true
		order.PaymentStatus = domain.PaymentStatusRefunded
		order.Payment.RefundID = refundID
		order.Payment.RefundedAt = &now
		order.Payment.RefundAmount = amount
		order.Payment.RefundReason = strings.TrimSpace(reason)
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if unmatched {
		// A refund event for a payment this order never captured, typically a
		// webhook arriving ahead of its capture. Leave the order alone.
		s.logger(ctx, "payment.refund.unmatched", map[string]any{
			"order":         order.ID,
			"refund":        refundID,
			"paymentStatus": string(order.PaymentStatus),
		})
		return order, nil
	}
	if !applied {
		return order, nil
	}

	s.notifyCustomer(ctx, order.CustomerID, notifications.Event{
		Type:      "payment-update",
		OrderID:   order.ID,
		Status:    string(order.PaymentStatus),
		Message:   "Your payment has been refunded.",
		Timestamp: now,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          paymentEventRefunded,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata: map[string]any{
			"refundId": refundID,
			"amount":   amount,
		},
	})

	return order, nil
}

type webhookEvent struct {
	Type    string         `json:"type"`
	Payload webhookPayload `json:"payload"`
}

type webhookPayload struct {
	PaymentID        string `json:"paymentId"`
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	Amount           int64  `json:"amount"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	RefundID         string `json:"refundId"`
	Reason           string `json:"reason"`
}

// HandleWebhookEvent verifies the gateway signature over the raw body before
// the payload is even parsed, then dispatches by event type. Gateways may
// redeliver events, so every branch tolerates replays.
func (s *paymentService) HandleWebhookEvent(ctx context.Context, body []byte, signature string) error {
	if !payments.VerifyWebhook(s.webhookSecret, body, signature) {
		s.logger(ctx, "payment.webhook.signature.invalid", map[string]any{
			"bodyBytes": len(body),
		})
		return ErrPaymentSignatureInvalid
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook body: %v", ErrPaymentInvalidInput, err)
	}
	orderID := strings.TrimSpace(event.Payload.OrderID)

	switch event.Type {
	case webhookEventPaymentCaptured:
		_, err := s.applySuccess(ctx, orderID, strings.TrimSpace(event.Payload.PaymentID), strings.TrimSpace(event.Payload.GatewayOrderID))
		return err
	case webhookEventPaymentFailed:
		_, err := s.ApplyPaymentFailure(ctx, PaymentFailureCommand{
			OrderID:          orderID,
			GatewayPaymentID: event.Payload.PaymentID,
			ErrorCode:        event.Payload.ErrorCode,
			ErrorDescription: event.Payload.ErrorDescription,
		})
		return err
	case webhookEventRefundProcessed:
		_, err := s.recordRefund(ctx, orderID, strings.TrimSpace(event.Payload.RefundID), payments.FromMinorUnits(event.Payload.Amount), event.Payload.Reason)
		return err
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"type":  event.Type,
			"order": orderID,
		})
		return nil
	}
}

func (s *paymentService) PaymentStatus(ctx context.Context, orderID string) (PaymentStatusView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentStatusView{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentStatusView{}, s.mapRepositoryError(err)
	}

	return PaymentStatusView{
		OrderID:       order.ID,
		PaymentStatus: order.PaymentStatus,
		Details:       order.Payment,
		TotalAmount:   order.TotalAmount,
	}, nil
}

func (s *paymentService) notifyCustomer(ctx context.Context, customerID string, event notifications.Event) {
	if s.notifier == nil || strings.TrimSpace(customerID) == "" {
		return
	}
	s.notifier.NotifyCustomer(ctx, customerID, event)
}

func (s *paymentService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

// isCurrencyCode reports whether code looks like an ISO 4217 alpha code.
func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (s *paymentService) mapRepositoryError(err error) error {
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
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *paymentService) now() time.Time {
	return s.clock()
}
