package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealbridge/api/internal/domain"
	pfirestore "github.com/mealbridge/api/internal/platform/firestore"
	"github.com/mealbridge/api/internal/repositories"
)

const ordersCollection = "orders"

// Sort fields accepted by ListByUser. The zero value falls back to createdAt.
var orderSortFields = map[string]string{
	"createdAt":  "createdAt",
	"totalPrice": "totalPrice",
	"status":     "status",
}

type orderItemDocument struct {
	ItemID   string `firestore:"itemId"`
	Name     string `firestore:"name"`
	Price    int64  `firestore:"price"`
	Quantity int    `firestore:"quantity"`
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	ShopID        string              `firestore:"shopId"`
	Name          string              `firestore:"name"`
	AddressRoad   string              `firestore:"addressRoad"`
	AddressDetail string              `firestore:"addressDetail"`
	AddressZip    string              `firestore:"addressZip"`
	Phone         string              `firestore:"phone"`
	OrderNote     string              `firestore:"orderNote"`
	DeliveryNote  string              `firestore:"deliveryNote"`
	TotalPrice    int64               `firestore:"totalPrice"`
	Status        string              `firestore:"status"`
	Items         []orderItemDocument `firestore:"items"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

// OrderRepository persists orders with embedded line items in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

// Insert writes a new order document, failing on duplicate IDs.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, encodeOrder(order))
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.base.Set(ctx, order.ID, encodeOrder(order))
}

// FindByID loads a single order with its line items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders as an offset page. One extra document is
// fetched to detect whether a further page exists.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, query repositories.OrderListQuery) (domain.Page[domain.Order], error) {
	size := query.Size
	if size <= 0 {
		size = 20
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}

	sortField, ok := orderSortFields[query.SortBy]
	if !ok {
		sortField = "createdAt"
	}
	direction := firestore.Asc
	if query.Order == domain.SortDesc || query.SortBy == "" {
		direction = firestore.Desc
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).
			OrderBy(sortField, direction).
			Offset((page - 1) * size).
			Limit(size + 1)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	hasNext := len(docs) > size
	if hasNext {
		docs = docs[:size]
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return domain.Page[domain.Order]{Items: orders, Page: page, Size: size, HasNext: hasNext}, nil
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	return orderDocument{
		UserID:        order.UserID,
		ShopID:        order.ShopID,
		Name:          order.Name,
		AddressRoad:   order.Address.Road,
		AddressDetail: order.Address.Detail,
		AddressZip:    order.Address.Zip,
		Phone:         order.Phone,
		OrderNote:     order.OrderNote,
		DeliveryNote:  order.DeliveryNote,
		TotalPrice:    order.TotalPrice,
		Status:        string(order.Status),
		Items:         items,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItemLine, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItemLine{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	return domain.Order{
		ID:     id,
		UserID: doc.UserID,
		ShopID: doc.ShopID,
		Name:   doc.Name,
		Address: domain.Address{
			Road:   doc.AddressRoad,
			Detail: doc.AddressDetail,
			Zip:    doc.AddressZip,
		},
		Phone:        doc.Phone,
		OrderNote:    doc.OrderNote,
		DeliveryNote: doc.DeliveryNote,
		TotalPrice:   doc.TotalPrice,
		Status:       domain.OrderStatus(doc.Status),
		Items:        items,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
