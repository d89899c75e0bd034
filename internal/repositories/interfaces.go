package repositories

import (
	"context"

	domain "github.com/oghouse/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows operator listings. Zero values mean no filtering.
type OrderListFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	Limit      int
}

// OrderRepository persists order aggregates.
//
// Mutate runs fn against the current document inside a storage transaction and
// persists the result, so concurrent writers to the same order serialise
// instead of clobbering each other. fn may be retried; it must be free of side
// effects beyond the order it is handed.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// HealthRepository reports readiness of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
