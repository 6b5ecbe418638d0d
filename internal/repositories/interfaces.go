package repositories

import (
	"context"
	"time"

	domain "github.com/mealbridge/api/internal/domain"
)

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

// OrderListQuery carries offset paging and ordering inputs for order listings.
type OrderListQuery struct {
	Page   int
	Size   int
	SortBy string
	Order  domain.SortOrder
}

// OrderRepository persists order documents with their embedded line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, query OrderListQuery) (domain.Page[domain.Order], error)
}

// OrderHistoryRepository appends and reads the immutable status log of an order.
type OrderHistoryRepository interface {
	Append(ctx context.Context, entry domain.OrderStatusLog) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusLog, error)
}

// PaymentRepository persists payment records and the stale-payment scan used by the sweep.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Payment, error)
}

// CatalogRepository reads shop and menu data needed to assemble orders.
type CatalogRepository interface {
	FindShopByID(ctx context.Context, shopID string) (domain.Shop, error)
	FindItemsByIDs(ctx context.Context, shopID string, itemIDs []string) (map[string]domain.MenuItem, error)
}
