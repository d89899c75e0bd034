package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/oghouse/api/internal/domain"
	pfirestore "github.com/oghouse/api/internal/platform/firestore"
	"github.com/oghouse/api/internal/repositories"
)

const (
	orderCollection  = "orders"
	defaultListLimit = 100
)

// OrderRepository persists order aggregates within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("firestore: orders create", err)
	}
	return nil
}

// FindByID loads a single order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// List returns orders newest first, optionally narrowed by status or customer.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.Status != "" {
			query = query.Where("status", "==", string(filter.Status))
		}
		if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
			query = query.Where("customerId", "==", customerID)
		}
		return query.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// Mutate applies fn to the current document inside a Firestore transaction.
// Concurrent mutations of the same order serialise through the transaction
// retry loop, so fn must stay side-effect free.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutation function is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var mutated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return err
		}

		order := decodeOrder(snapshot.Ref.ID, doc)
		if err := fn(&order); err != nil {
			return err
		}
		order.ID = snapshot.Ref.ID

		if err := tx.Set(ref, encodeOrder(order)); err != nil {
			return err
		}
		mutated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return mutated, nil
}

// Delete removes the order document. Missing orders surface as not-found.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("firestore: orders delete", err)
	}
	return nil
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	CustomerID          string                  `firestore:"customerId,omitempty"`
	CustomerName        string                  `firestore:"customerName"`
	CustomerEmail       string                  `firestore:"customerEmail,omitempty"`
	CustomerPhone       string                  `firestore:"customerPhone,omitempty"`
	Items               []orderItemDocument     `firestore:"items"`
	TotalAmount         float64                 `firestore:"totalAmount"`
	Status              string                  `firestore:"status"`
	StatusHistory       []statusHistoryDocument `firestore:"statusHistory"`
	Delivery            deliveryDocument        `firestore:"deliveryDetails"`
	Payment             paymentDocument         `firestore:"paymentDetails"`
	PaymentStatus       string                  `firestore:"paymentStatus"`
	SpecialInstructions string                  `firestore:"specialInstructions,omitempty"`
	CreatedAt           time.Time               `firestore:"createdAt"`
	UpdatedAt           time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ItemRef   string  `firestore:"itemRef"`
	Name      string  `firestore:"name"`
	Quantity  int     `firestore:"quantity"`
	UnitPrice float64 `firestore:"unitPrice"`
	LineTotal float64 `firestore:"lineTotal"`
}

type statusHistoryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	ActorID   string    `firestore:"actorId,omitempty"`
	Notes     string    `firestore:"notes,omitempty"`
}

type deliveryDocument struct {
	Address            string     `firestore:"address"`
	City               string     `firestore:"city,omitempty"`
	Pincode            string     `firestore:"pincode,omitempty"`
	Phone              string     `firestore:"phone,omitempty"`
	EstimatedTime      *time.Time `firestore:"estimatedTime,omitempty"`
	ActualDeliveryTime *time.Time `firestore:"actualDeliveryTime,omitempty"`
	CourierNote        string     `firestore:"courierNote,omitempty"`
}

type paymentDocument struct {
	GatewayPaymentID string     `firestore:"gatewayPaymentId,omitempty"`
	GatewayOrderID   string     `firestore:"gatewayOrderId,omitempty"`
	PaidAt           *time.Time `firestore:"paidAt,omitempty"`
	FailedAt         *time.Time `firestore:"failedAt,omitempty"`
	ErrorCode        string     `firestore:"errorCode,omitempty"`
	ErrorDescription string     `firestore:"errorDescription,omitempty"`
	RefundID         string     `firestore:"refundId,omitempty"`
	RefundedAt       *time.Time `firestore:"refundedAt,omitempty"`
	RefundAmount     float64    `firestore:"refundAmount,omitempty"`
	RefundReason     string     `firestore:"refundReason,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		CustomerID:          strings.TrimSpace(order.CustomerID),
		CustomerName:        strings.TrimSpace(order.CustomerName),
		CustomerEmail:       strings.TrimSpace(order.CustomerEmail),
		CustomerPhone:       strings.TrimSpace(order.CustomerPhone),
		TotalAmount:         order.TotalAmount,
		Status:              string(order.Status),
		PaymentStatus:       string(order.PaymentStatus),
		SpecialInstructions: order.SpecialInstructions,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
		Delivery: deliveryDocument{
			Address:            order.Delivery.Address,
			City:               order.Delivery.City,
			Pincode:            order.Delivery.Pincode,
			Phone:              order.Delivery.Phone,
			EstimatedTime:      order.Delivery.EstimatedTime,
			ActualDeliveryTime: order.Delivery.ActualDeliveryTime,
			CourierNote:        order.Delivery.CourierNote,
		},
		Payment: paymentDocument{
			GatewayPaymentID: order.Payment.GatewayPaymentID,
			GatewayOrderID:   order.Payment.GatewayOrderID,
			PaidAt:           order.Payment.PaidAt,
			FailedAt:         order.Payment.FailedAt,
			ErrorCode:        order.Payment.ErrorCode,
			ErrorDescription: order.Payment.ErrorDescription,
			RefundID:         order.Payment.RefundID,
			RefundedAt:       order.Payment.RefundedAt,
			RefundAmount:     order.Payment.RefundAmount,
			RefundReason:     order.Payment.RefundReason,
		},
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ItemRef:   item.ItemRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}

	doc.StatusHistory = make([]statusHistoryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusHistoryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			ActorID:   entry.ActorID,
			Notes:     entry.Notes,
		})
	}

	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                  id,
		CustomerID:          doc.CustomerID,
		CustomerName:        doc.CustomerName,
		CustomerEmail:       doc.CustomerEmail,
		CustomerPhone:       doc.CustomerPhone,
		TotalAmount:         doc.TotalAmount,
		Status:              domain.OrderStatus(doc.Status),
		PaymentStatus:       domain.PaymentStatus(doc.PaymentStatus),
		SpecialInstructions: doc.SpecialInstructions,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
		Delivery: domain.DeliveryDetails{
			Address:            doc.Delivery.Address,
			City:               doc.Delivery.City,
			Pincode:            doc.Delivery.Pincode,
			Phone:              doc.Delivery.Phone,
			EstimatedTime:      doc.Delivery.EstimatedTime,
			ActualDeliveryTime: doc.Delivery.ActualDeliveryTime,
			CourierNote:        doc.Delivery.CourierNote,
		},
		Payment: domain.PaymentDetails{
			GatewayPaymentID: doc.Payment.GatewayPaymentID,
			GatewayOrderID:   doc.Payment.GatewayOrderID,
			PaidAt:           doc.Payment.PaidAt,
			FailedAt:         doc.Payment.FailedAt,
			ErrorCode:        doc.Payment.ErrorCode,
			ErrorDescription: doc.Payment.ErrorDescription,
			RefundID:         doc.Payment.RefundID,
			RefundedAt:       doc.Payment.RefundedAt,
			RefundAmount:     doc.Payment.RefundAmount,
			RefundReason:     doc.Payment.RefundReason,
		},
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ItemRef:   item.ItemRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}

	order.StatusHistory = make([]domain.StatusHistoryEntry, 0, len(doc.StatusHistory))
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp,
			ActorID:   entry.ActorID,
			Notes:     entry.Notes,
		})
	}

	return order
}
