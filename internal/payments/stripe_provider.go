package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

var _ Provider = (*StripeProvider)(nil)

// CreateIntent opens a Payment Intent for the given order amount.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}

	params.Metadata = make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
		params.Metadata["orderId"] = orderID
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		params.Metadata["receipt"] = receipt
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return Intent{
		GatewayOrderID: intent.ID,
		ClientSecret:   intent.ClientSecret,
		Amount:         intent.Amount,
		Currency:       strings.ToUpper(string(intent.Currency)),
		Status:         mapStripeIntentStatus(intent.Status),
		CreatedAt:      stripeTime(intent.Created, p.clock),
	}, nil
}

// Refund creates a refund against the captured Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if p == nil {
		return Refund{}, errors.New("stripe: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return Refund{}, errors.New("stripe: payment id is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": paymentID,
		"refund":        refund.ID,
		"amount":        refund.Amount,
	})

	return Refund{
		ID:        refund.ID,
		PaymentID: paymentID,
		Amount:    refund.Amount,
		Status:    mapStripeRefundStatus(refund.Status),
		CreatedAt: stripeTime(refund.Created, p.clock),
	}, nil
}

func mapStripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func mapStripeRefundStatus(status stripe.RefundStatus) Status {
	switch status {
	case stripe.RefundStatusSucceeded:
		return StatusRefunded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "duplicate":
		return string(stripe.RefundReasonDuplicate)
	case "fraudulent":
		return string(stripe.RefundReasonFraudulent)
	case "requested_by_customer", "customer_request", "":
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func stripeTime(created int64, clock func() time.Time) time.Time {
	if created > 0 {
		return time.Unix(created, 0).UTC()
	}
	return clock()
}
