package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	domain "github.com/oghouse/api/internal/domain"
	"github.com/oghouse/api/internal/payments"
)

const (
	testKeySecret     = "client-key-secret"
	testWebhookSecret = "webhook-secret"
)

type stubProvider struct {
	createIntent func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
	refund       func(ctx context.Context, req payments.RefundRequest) (payments.Refund, error)

	mu          sync.Mutex
	refundCalls int
}

func (p *stubProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if p.createIntent == nil {
		return payments.Intent{}, errors.New("unexpected CreateIntent call")
	}
	return p.createIntent(ctx, req)
}

func (p *stubProvider) Refund(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
	p.mu.Lock()
	p.refundCalls++
	p.mu.Unlock()
	if p.refund == nil {
		return payments.Refund{}, errors.New("unexpected Refund call")
	}
	return p.refund(ctx, req)
}

func newTestPaymentService(t *testing.T, repo *memOrderRepo, provider payments.Provider, notifier Notifier) PaymentService {
	t.Helper()
	if provider == nil {
		provider = &stubProvider{}
	}
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:        repo,
		Provider:      provider,
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		Clock:         fixedClock(testNow),
		Notifier:      notifier,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func seedOrder(t *testing.T, repo *memOrderRepo) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:            "ord_1",
		CustomerID:    "cust-1",
		CustomerName:  "Asha Rao",
		Items:         []domain.OrderItem{{ItemRef: "menu-7", Name: "Masala Dosa", Quantity: 2, UnitPrice: 120, LineTotal: 240}},
		TotalAmount:   240,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		StatusHistory: []domain.StatusHistoryEntry{{Status: domain.OrderStatusPending, Timestamp: testNow}},
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	if err := repo.Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestCreateIntent(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)

	var captured payments.IntentRequest
	provider := &stubProvider{
		createIntent: func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
			captured = req
			return payments.Intent{
				GatewayOrderID: "pi_1",
				ClientSecret:   "pi_1_secret",
				Amount:         req.Amount,
				Currency:       req.Currency,
				Status:         payments.StatusPending,
			}, nil
		},
	}
	svc := newTestPaymentService(t, repo, provider, nil)

	intent, err := svc.CreateIntent(context.Background(), CreateIntentCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.GatewayOrderID != "pi_1" || intent.Amount != 24000 {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if captured.Currency != "INR" {
		t.Fatalf("currency = %s, want INR", captured.Currency)
	}
	if captured.Metadata["orderId"] != order.ID {
		t.Fatalf("expected order correlation metadata, got %+v", captured.Metadata)
	}
	if captured.Receipt != "rcpt_"+order.ID {
		t.Fatalf("receipt = %s", captured.Receipt)
	}

	// The order must stay untouched until the gateway confirms.
	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPending || stored.Payment.GatewayOrderID != "" {
		t.Fatalf("create intent mutated the order: %+v", stored.Payment)
	}
}

func TestCreateIntentCurrencyOverride(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)

	var captured payments.IntentRequest
	provider := &stubProvider{
		createIntent: func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
			captured = req
			return payments.Intent{GatewayOrderID: "pi_1", Amount: req.Amount, Currency: req.Currency}, nil
		},
	}
	svc := newTestPaymentService(t, repo, provider, nil)

	intent, err := svc.CreateIntent(context.Background(), CreateIntentCommand{OrderID: order.ID, Currency: "usd"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if captured.Currency != "USD" || intent.Currency != "USD" {
		t.Fatalf("currency = %s / %s, want USD", captured.Currency, intent.Currency)
	}

	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{OrderID: order.ID, Currency: "rupees"}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input for malformed currency, got %v", err)
	}
}

func TestCreateIntentConflictsWhenPaid(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")

	svc := newTestPaymentService(t, repo, &stubProvider{}, nil)
	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{OrderID: order.ID}); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateIntentGatewayFailure(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	provider := &stubProvider{
		createIntent: func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
			return payments.Intent{}, errors.New("gateway down")
		},
	}
	svc := newTestPaymentService(t, repo, provider, nil)
	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{OrderID: order.ID}); !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func markPaid(t *testing.T, repo *memOrderRepo, orderID, paymentID string) {
	t.Helper()
	now := testNow
	_, err := repo.Mutate(context.Background(), orderID, func(order *domain.Order) error {
		order.PaymentStatus = domain.PaymentStatusPaid
		order.Payment.GatewayPaymentID = paymentID
		order.Payment.PaidAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
}

func TestConfirmPayment(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	notifier := &stubNotifier{}
	svc := newTestPaymentService(t, repo, nil, notifier)

	sig := payments.SignConfirmation(testKeySecret, "gw_1", "pay_1")
	updated, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{
		OrderID:          order.ID,
		GatewayOrderID:   "gw_1",
		GatewayPaymentID: "pay_1",
		Signature:        sig,
	})
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s", updated.PaymentStatus)
	}
	if updated.Payment.GatewayPaymentID != "pay_1" || updated.Payment.GatewayOrderID != "gw_1" {
		t.Fatalf("unexpected payment details: %+v", updated.Payment)
	}
	if updated.Payment.PaidAt == nil || !updated.Payment.PaidAt.Equal(testNow) {
		t.Fatalf("paidAt = %v", updated.Payment.PaidAt)
	}

	captured := notifier.captured()
	if len(captured) != 1 || captured[0].customerID != "cust-1" {
		t.Fatalf("expected customer notification, got %+v", captured)
	}
}

func TestConfirmPaymentRejectsBadSignature(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	_, err := svc.ConfirmPayment(context.Background(), ConfirmPaymentCommand{
		OrderID:          order.ID,
		GatewayOrderID:   "gw_1",
		GatewayPaymentID: "pay_1",
		Signature:        payments.SignConfirmation("wrong-secret", "gw_1", "pay_1"),
	})
	if !errors.Is(err, ErrPaymentSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}

	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatal("order must not be marked paid on a bad signature")
	}
}

func TestApplyPaymentSuccessIdempotent(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	notifier := &stubNotifier{}
	svc := newTestPaymentService(t, repo, nil, notifier)

	cmd := PaymentSuccessCommand{OrderID: order.ID, GatewayPaymentID: "pay_1"}
	if _, err := svc.ApplyPaymentSuccess(context.Background(), cmd); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	updated, err := svc.ApplyPaymentSuccess(context.Background(), cmd)
	if err != nil {
		t.Fatalf("replay must be a no-op, got %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s", updated.PaymentStatus)
	}
	if len(notifier.captured()) != 1 {
		t.Fatal("replay must not emit a second notification")
	}
}

func TestApplyPaymentSuccessDifferentPaymentConflicts(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	if _, err := svc.ApplyPaymentSuccess(context.Background(), PaymentSuccessCommand{OrderID: order.ID, GatewayPaymentID: "pay_1"}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := svc.ApplyPaymentSuccess(context.Background(), PaymentSuccessCommand{OrderID: order.ID, GatewayPaymentID: "pay_2"}); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict for second payment id, got %v", err)
	}
}

func TestApplyPaymentSuccessNotFound(t *testing.T) {
	svc := newTestPaymentService(t, newMemOrderRepo(), nil, nil)
	if _, err := svc.ApplyPaymentSuccess(context.Background(), PaymentSuccessCommand{OrderID: "ord_missing", GatewayPaymentID: "pay_1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyPaymentFailure(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	updated, err := svc.ApplyPaymentFailure(context.Background(), PaymentFailureCommand{
		OrderID:          order.ID,
		GatewayPaymentID: "pay_1",
		ErrorCode:        "card_declined",
		ErrorDescription: "insufficient funds",
	})
	if err != nil {
		t.Fatalf("apply failure: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("payment status = %s", updated.PaymentStatus)
	}
	if updated.Payment.FailedAt == nil || updated.Payment.ErrorCode != "card_declined" {
		t.Fatalf("unexpected details: %+v", updated.Payment)
	}
	if updated.Payment.PaidAt != nil {
		t.Fatal("paidAt and failedAt must stay mutually exclusive")
	}
}

func TestApplyPaymentFailureNeverDowngradesPaid(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")
	svc := newTestPaymentService(t, repo, nil, nil)

	updated, err := svc.ApplyPaymentFailure(context.Background(), PaymentFailureCommand{
		OrderID:          order.ID,
		GatewayPaymentID: "pay_1",
		ErrorCode:        "late_failure",
	})
	if err != nil {
		t.Fatalf("apply failure: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("paid order was downgraded: %s", updated.PaymentStatus)
	}
	if updated.Payment.FailedAt != nil {
		t.Fatalf("failure fields set on paid order: %+v", updated.Payment)
	}
}

func TestRefund(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")

	provider := &stubProvider{
		refund: func(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
			if req.PaymentID != "pay_1" {
				t.Fatalf("refund payment id = %s", req.PaymentID)
			}
			if req.IdempotencyKey != "refund-ord_1" {
				t.Fatalf("idempotency key = %q", req.IdempotencyKey)
			}
			return payments.Refund{ID: "re_1", PaymentID: req.PaymentID, Amount: 24000, Status: payments.StatusRefunded}, nil
		},
	}
	svc := newTestPaymentService(t, repo, provider, nil)

	updated, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID, Reason: "customer request"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("payment status = %s", updated.PaymentStatus)
	}
	if updated.Payment.RefundID != "re_1" || updated.Payment.RefundAmount != 240 {
		t.Fatalf("unexpected refund fields: %+v", updated.Payment)
	}
	if updated.Payment.RefundedAt == nil {
		t.Fatal("refundedAt not set")
	}
}

func TestRefundConflicts(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, &stubProvider{}, nil)

	// Not paid yet.
	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID}); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict for unpaid order, got %v", err)
	}

	markPaid(t, repo, order.ID, "pay_1")
	provider := &stubProvider{
		refund: func(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
			return payments.Refund{ID: "re_1", PaymentID: req.PaymentID, Status: payments.StatusRefunded}, nil
		},
	}
	svc = newTestPaymentService(t, repo, provider, nil)
	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID}); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict for second refund, got %v", err)
	}
	if provider.refundCalls != 1 {
		t.Fatalf("gateway called %d times, want 1", provider.refundCalls)
	}
}

func TestRefundGatewayFailureLeavesOrderUntouched(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")

	provider := &stubProvider{
		refund: func(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
			return payments.Refund{}, errors.New("gateway down")
		},
	}
	svc := newTestPaymentService(t, repo, provider, nil)

	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID}); !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPaid || stored.Payment.RefundID != "" {
		t.Fatalf("order mutated despite gateway failure: %+v", stored.Payment)
	}
}

func TestRefundPartialAmountValidation(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")
	svc := newTestPaymentService(t, repo, &stubProvider{}, nil)

	tooMuch := 500.0
	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID, Amount: &tooMuch}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input for oversized refund, got %v", err)
	}
}

func TestRefundConcurrentRequestsSingleWinner(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")

	// Hold both requests at the gateway so each passes the pre-flight read
	// before either refund is recorded.
	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	var refundSeq atomic.Int32
	provider := &stubProvider{
		refund: func(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
			arrived.Done()
			<-release
			id := fmt.Sprintf("re_%d", refundSeq.Add(1))
			return payments.Refund{ID: id, PaymentID: req.PaymentID, Status: payments.StatusRefunded}, nil
		},
	}
	svc := newTestPaymentService(t, repo, provider, nil)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Refund(context.Background(), RefundCommand{OrderID: order.ID})
			errs <- err
		}()
	}
	arrived.Wait()
	close(release)

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			successes++
		case errors.Is(err, ErrPaymentConflict):
			conflicts++
		default:
			t.Fatalf("unexpected refund error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes = %d, conflicts = %d, want exactly one of each", successes, conflicts)
	}

	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusRefunded || stored.Payment.RefundID == "" {
		t.Fatalf("refund not recorded: %+v", stored.Payment)
	}
}

func webhookBody(t *testing.T, event webhookEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return body
}

func signedWebhook(t *testing.T, event webhookEvent) ([]byte, string) {
	t.Helper()
	body := webhookBody(t, event)
	return body, payments.SignWebhook(testWebhookSecret, body)
}

func TestHandleWebhookCaptured(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	body, sig := signedWebhook(t, webhookEvent{
		Type: "payment.captured",
		Payload: webhookPayload{
			OrderID:   order.ID,
			PaymentID: "pay_1",
			Amount:    24000,
		},
	})

	if err := svc.HandleWebhookEvent(context.Background(), body, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPaid || stored.Payment.GatewayPaymentID != "pay_1" {
		t.Fatalf("capture not applied: %+v", stored.Payment)
	}

	// Redelivery is a no-op.
	if err := svc.HandleWebhookEvent(context.Background(), body, sig); err != nil {
		t.Fatalf("webhook replay: %v", err)
	}
}

func TestHandleWebhookFailed(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	body, sig := signedWebhook(t, webhookEvent{
		Type: "payment.failed",
		Payload: webhookPayload{
			OrderID:          order.ID,
			PaymentID:        "pay_1",
			ErrorCode:        "card_declined",
			ErrorDescription: "insufficient funds",
		},
	})
	if err := svc.HandleWebhookEvent(context.Background(), body, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("failure not applied: %s", stored.PaymentStatus)
	}
}

func TestHandleWebhookRefundProcessed(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")
	svc := newTestPaymentService(t, repo, nil, nil)

	body, sig := signedWebhook(t, webhookEvent{
		Type: "refund.processed",
		Payload: webhookPayload{
			OrderID:  order.ID,
			RefundID: "re_gw",
			Amount:   24000,
			Reason:   "gateway reversal",
		},
	})
	if err := svc.HandleWebhookEvent(context.Background(), body, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusRefunded || stored.Payment.RefundID != "re_gw" {
		t.Fatalf("refund not applied: %+v", stored.Payment)
	}
	if stored.Payment.RefundAmount != 240 {
		t.Fatalf("refund amount = %v, want 240", stored.Payment.RefundAmount)
	}
}

func TestHandleWebhookRefundBeforeCaptureLeavesOrderUntouched(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	body, sig := signedWebhook(t, webhookEvent{
		Type: "refund.processed",
		Payload: webhookPayload{
			OrderID:  order.ID,
			RefundID: "re_ghost",
			Amount:   24000,
		},
	})
	if err := svc.HandleWebhookEvent(context.Background(), body, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unpaid order transitioned to %s", stored.PaymentStatus)
	}
	if stored.Payment.RefundID != "" || stored.Payment.RefundedAt != nil {
		t.Fatalf("refund fields set without a capture: %+v", stored.Payment)
	}
}

func TestHandleWebhookUnknownTypeIgnored(t *testing.T) {
	repo := newMemOrderRepo()
	seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	body, sig := signedWebhook(t, webhookEvent{Type: "payout.settled"})
	if err := svc.HandleWebhookEvent(context.Background(), body, sig); err != nil {
		t.Fatalf("unknown webhook types must be ignored, got %v", err)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	svc := newTestPaymentService(t, repo, nil, nil)

	body := webhookBody(t, webhookEvent{
		Type:    "payment.captured",
		Payload: webhookPayload{OrderID: order.ID, PaymentID: "pay_1"},
	})

	if err := svc.HandleWebhookEvent(context.Background(), body, "deadbeef"); !errors.Is(err, ErrPaymentSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatal("unverified webhook must never be acted upon")
	}
}

func TestPaymentStatusView(t *testing.T) {
	repo := newMemOrderRepo()
	order := seedOrder(t, repo)
	markPaid(t, repo, order.ID, "pay_1")
	svc := newTestPaymentService(t, repo, nil, nil)

	view, err := svc.PaymentStatus(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("payment status: %v", err)
	}
	if view.PaymentStatus != domain.PaymentStatusPaid || view.Details.GatewayPaymentID != "pay_1" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.TotalAmount != 240 {
		t.Fatalf("total = %v", view.TotalAmount)
	}

	if _, err := svc.PaymentStatus(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
