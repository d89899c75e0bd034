package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newFn func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.newFn == nil {
		return nil, errors.New("unexpected New call")
	}
	return s.newFn(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.getFn == nil {
		return nil, errors.New("unexpected Get call")
	}
	return s.getFn(id, params)
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	if s.newFn == nil {
		return nil, errors.New("unexpected refund call")
	}
	return s.newFn(params)
}

func newTestProvider(t *testing.T, intents stripePaymentIntentAPI, refunds stripeRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{intents: intents, refunds: refunds},
		Clock:   func() time.Time { return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestStripeProviderCreateIntent(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	intents := &stubIntentAPI{
		newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:           "pi_123",
				ClientSecret: "pi_123_secret",
				Amount:       24999,
				Currency:     stripe.CurrencyINR,
				Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
				Created:      1740830400,
			}, nil
		},
	}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:  "ord-1",
		Amount:   24999,
		Currency: "INR",
		Receipt:  "rcpt-ord-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.GatewayOrderID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("status = %s, want pending", intent.Status)
	}
	if captured == nil || captured.Metadata["orderId"] != "ord-1" {
		t.Fatalf("expected order id metadata, got %+v", captured)
	}
	if captured.Metadata["receipt"] != "rcpt-ord-1" {
		t.Fatalf("expected receipt metadata, got %+v", captured.Metadata)
	}
}

func TestStripeProviderCreateIntentValidation(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "INR"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 100}); err == nil {
		t.Fatal("expected error for missing currency")
	}
}

func TestStripeProviderRefund(t *testing.T) {
	var captured *stripe.RefundParams
	refunds := &stubRefundAPI{
		newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			captured = params
			return &stripe.Refund{
				ID:     "re_1",
				Amount: 24999,
				Status: stripe.RefundStatusSucceeded,
			}, nil
		},
	}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	amount := int64(24999)
	refund, err := provider.Refund(context.Background(), RefundRequest{
		PaymentID: "pi_123",
		Amount:    &amount,
		Reason:    "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.ID != "re_1" || refund.PaymentID != "pi_123" {
		t.Fatalf("unexpected refund: %+v", refund)
	}
	if refund.Status != StatusRefunded {
		t.Fatalf("status = %s, want refunded", refund.Status)
	}
	if captured == nil || captured.PaymentIntent == nil || *captured.PaymentIntent != "pi_123" {
		t.Fatalf("expected payment intent param, got %+v", captured)
	}
	if captured.Amount == nil || *captured.Amount != 24999 {
		t.Fatalf("expected amount param, got %+v", captured.Amount)
	}
}

func TestStripeProviderRefundErrors(t *testing.T) {
	refunds := &stubRefundAPI{
		newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			return nil, errors.New("gateway down")
		},
	}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	if _, err := provider.Refund(context.Background(), RefundRequest{PaymentID: "pi_123"}); err == nil {
		t.Fatal("expected gateway error to propagate")
	}
	if _, err := provider.Refund(context.Background(), RefundRequest{}); err == nil {
		t.Fatal("expected error for missing payment id")
	}
}
