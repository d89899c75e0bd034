package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/oghouse/api/internal/domain"
	"github.com/oghouse/api/internal/platform/auth"
	"github.com/oghouse/api/internal/platform/httpx"
	"github.com/oghouse/api/internal/services"
)

const (
	maxOrderBodySize   = 32 * 1024
	defaultOrderLimit  = 20
	maxOrderLimit      = 100
)

type placeOrderItemRequest struct {
	ItemRef   string  `json:"itemRef"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type placeOrderRequest struct {
	CustomerName        string                  `json:"customerName"`
	CustomerEmail       string                  `json:"customerEmail"`
	CustomerPhone       string                  `json:"customerPhone"`
	Items               []placeOrderItemRequest `json:"items"`
	DeliveryDetails     deliveryDetailsRequest  `json:"deliveryDetails"`
	SpecialInstructions string                  `json:"specialInstructions"`
}

type deliveryDetailsRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type markDeliveredRequest struct {
	CourierNote string `json:"courierNote"`
}

type orderResponse struct {
	Order domain.Order `json:"order"`
}

type orderListResponse struct {
	Orders []domain.Order `json:"orders"`
	Count  int            `json:"count"`
}

type trackingResponse struct {
	Order   domain.Order           `json:"order"`
	Metrics domain.TrackingMetrics `json:"tracking"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/tracking", h.trackOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
	r.Patch("/{orderID}/delivered", h.markDelivered)
	r.Delete("/{orderID}", h.deleteOrder)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	items := make([]services.PlaceOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.PlaceOrderItem{
			ItemRef:   item.ItemRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	cmd := services.PlaceOrderCommand{
		CustomerID:    identity.UID,
		CustomerName:  req.CustomerName,
		CustomerEmail: firstNonEmpty(req.CustomerEmail, identity.Email),
		CustomerPhone: req.CustomerPhone,
		Items:         items,
		Delivery: services.DeliveryInput{
			Address: req.DeliveryDetails.Address,
			City:    req.DeliveryDetails.City,
			Pincode: req.DeliveryDetails.Pincode,
			Phone:   req.DeliveryDetails.Phone,
		},
		SpecialInstructions: req.SpecialInstructions,
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: order})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

	filter := services.OrderListFilter{
		Limit: defaultOrderLimit,
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		if !domain.IsValidOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case limit <= 0:
			filter.Limit = defaultOrderLimit
		case limit > maxOrderLimit:
			filter.Limit = maxOrderLimit
		default:
			filter.Limit = limit
		}
	}

	// Customers only ever see their own orders; the customerId filter is an
	// operator facility.
	if identity.IsOperator() {
		filter.CustomerID = strings.TrimSpace(query.Get("customerId"))
	} else {
		filter.CustomerID = identity.UID
	}

	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: orders, Count: len(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !canReadOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	tracking, err := h.orders.TrackOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !canReadOrder(identity, tracking.Order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "you cannot track this order", http.StatusForbidden))
		return
	}

	writeJSONResponse(w, http.StatusOK, trackingResponse{Order: tracking.Order, Metrics: tracking.Metrics})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireOperator(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID: identity.UID,
		Notes:   req.Notes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) markDelivered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireOperator(ctx, w)
	if !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req markDeliveredRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.MarkDelivered(ctx, services.MarkDeliveredCommand{
		OrderID:     orderID,
		ActorID:     identity.UID,
		CourierNote: req.CourierNote,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: order})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requireOperator(ctx, w); !ok {
		return
	}

	orderID, ok := requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	if err := h.orders.DeleteOrder(ctx, orderID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func canReadOrder(identity *auth.Identity, order domain.Order) bool {
	if identity.IsOperator() {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(order.CustomerID), strings.TrimSpace(identity.UID))
}

func requireOrderID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
