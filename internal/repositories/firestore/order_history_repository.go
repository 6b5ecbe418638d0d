package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealbridge/api/internal/domain"
	pfirestore "github.com/mealbridge/api/internal/platform/firestore"
)

const orderStatusLogsCollection = "orderStatusLogs"

type orderStatusLogDocument struct {
	OrderID   string    `firestore:"orderId"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderHistoryRepository stores the append-only status log of orders.
type OrderHistoryRepository struct {
	base *pfirestore.BaseRepository[orderStatusLogDocument]
}

// NewOrderHistoryRepository constructs a Firestore-backed order history repository.
func NewOrderHistoryRepository(provider *pfirestore.Provider) (*OrderHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("order history repository requires firestore provider")
	}
	return &OrderHistoryRepository{
		base: pfirestore.NewBaseRepository[orderStatusLogDocument](provider, orderStatusLogsCollection, nil),
	}, nil
}

// Append writes a new history entry. Entries are never updated or deleted.
func (r *OrderHistoryRepository) Append(ctx context.Context, entry domain.OrderStatusLog) error {
	return r.base.Create(ctx, entry.ID, orderStatusLogDocument{
		OrderID:   entry.OrderID,
		Status:    string(entry.Status),
		CreatedAt: entry.CreatedAt.UTC(),
	})
}

// ListByOrder returns the order's history entries, most recent first.
func (r *OrderHistoryRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusLog, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.OrderStatusLog, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, domain.OrderStatusLog{
			ID:        doc.ID,
			OrderID:   doc.Data.OrderID,
			Status:    domain.OrderStatus(doc.Data.Status),
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return entries, nil
}
