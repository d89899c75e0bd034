package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/oghouse/api/internal/domain"
	"github.com/oghouse/api/internal/platform/auth"
	"github.com/oghouse/api/internal/platform/httpx"
	"github.com/oghouse/api/internal/services"
)

const (
	maxPaymentBodySize = 32 * 1024
	maxWebhookBodySize = 256 * 1024

	// webhookSignatureHeader carries the hex HMAC computed by the gateway over
	// the raw request body.
	webhookSignatureHeader = "X-Webhook-Signature"
)

type initializePaymentRequest struct {
	Currency string `json:"currency"`
}

type confirmPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type refundRequest struct {
	Amount *float64 `json:"amount"`
	Reason string   `json:"reason"`
}

type paymentIntentResponse struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	ClientSecret   string `json:"clientSecret"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

type verifyPaymentResponse struct {
	Verified bool         `json:"verified"`
	Order    domain.Order `json:"order"`
}

type paymentStatusResponse struct {
	OrderID       string                `json:"orderId"`
	PaymentStatus domain.PaymentStatus  `json:"paymentStatus"`
	Details       domain.PaymentDetails `json:"paymentDetails"`
	TotalAmount   float64               `json:"totalAmount"`
}

// PaymentHandlers exposes the payment reconciliation endpoints.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	orders   services.OrderService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, orders services.OrderService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
		orders:   orders,
	}
}

// Routes registers the /payments endpoints. The webhook route deliberately
// bypasses user authentication; the HMAC check on the raw body is its gate.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Post("/webhook", h.webhook)

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/initialize/{orderID}", h.initialize)
		g.Post("/verify", h.verify)
		g.Post("/refund/{orderID}", h.refund)
		g.Get("/status/{orderID}", h.status)
	})
}

func (h *PaymentHandlers) initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	if !h.canActOnOrder(ctx, w, identity, orderID) {
		return
	}

	// The body is optional; an empty one keeps the configured currency.
	var req initializePaymentRequest
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if !unmarshalJSONBody(ctx, w, body, &req) {
			return
		}
	}

	intent, err := h.payments.CreateIntent(ctx, services.CreateIntentCommand{OrderID: orderID, Currency: req.Currency})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentIntentResponse{
		OrderID:        intent.OrderID,
		GatewayOrderID: intent.GatewayOrderID,
		ClientSecret:   intent.ClientSecret,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
	})
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if !decodeJSONBody(ctx, w, r, maxPaymentBodySize, &req) {
		return
	}

	if !h.canActOnOrder(ctx, w, identity, req.OrderID) {
		return
	}

	order, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:          req.OrderID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{Verified: true, Order: order})
}

func (h *PaymentHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	signature := r.Header.Get(webhookSignatureHeader)
	if err := h.payments.HandleWebhookEvent(ctx, body, signature); err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireOperator(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req refundRequest
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if !unmarshalJSONBody(ctx, w, body, &req) {
			return
		}
	}

	order, err := h.payments.Refund(ctx, services.RefundCommand{
		OrderID: orderID,
		Amount:  req.Amount,
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: order})
}

func (h *PaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	if !h.canActOnOrder(ctx, w, identity, orderID) {
		return
	}

	view, err := h.payments.PaymentStatus(ctx, orderID)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentStatusResponse{
		OrderID:       view.OrderID,
		PaymentStatus: view.PaymentStatus,
		Details:       view.Details,
		TotalAmount:   view.TotalAmount,
	})
}

// canActOnOrder loads the order and enforces owner-or-operator access, writing
// the error response on failure.
func (h *PaymentHandlers) canActOnOrder(ctx context.Context, w http.ResponseWriter, identity *auth.Identity, orderID string) bool {
	if h.orders == nil {
		return true
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return false
	}
	if !canReadOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return false
	}
	return true
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentSignatureInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGateway):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "payment gateway request failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
