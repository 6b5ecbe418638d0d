package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/mealbridge/api/internal/domain"
	pfirestore "github.com/mealbridge/api/internal/platform/firestore"
)

const (
	shopsCollection     = "shops"
	menuItemsCollection = "menuItems"
)

type shopDocument struct {
	OwnerID       string    `firestore:"ownerId"`
	Name          string    `firestore:"name"`
	Phone         string    `firestore:"phone"`
	MinOrderPrice int64     `firestore:"minOrderPrice"`
	DeliveryFee   int64     `firestore:"deliveryFee"`
	Open          bool      `firestore:"open"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

type menuItemDocument struct {
	ShopID      string `firestore:"shopId"`
	Name        string `firestore:"name"`
	Description string `firestore:"description"`
	Price       int64  `firestore:"price"`
	Available   bool   `firestore:"available"`
}

// CatalogRepository reads shop and menu documents used during order assembly.
type CatalogRepository struct {
	shops *pfirestore.BaseRepository[shopDocument]
	items *pfirestore.BaseRepository[menuItemDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		shops: pfirestore.NewBaseRepository[shopDocument](provider, shopsCollection, nil),
		items: pfirestore.NewBaseRepository[menuItemDocument](provider, menuItemsCollection, nil),
	}, nil
}

// FindShopByID loads a single shop.
func (r *CatalogRepository) FindShopByID(ctx context.Context, shopID string) (domain.Shop, error) {
	doc, err := r.shops.Get(ctx, shopID)
	if err != nil {
		return domain.Shop{}, err
	}
	return domain.Shop{
		ID:            doc.ID,
		OwnerID:       doc.Data.OwnerID,
		Name:          doc.Data.Name,
		Phone:         doc.Data.Phone,
		MinOrderPrice: doc.Data.MinOrderPrice,
		DeliveryFee:   doc.Data.DeliveryFee,
		Open:          doc.Data.Open,
		CreatedAt:     doc.Data.CreatedAt,
		UpdatedAt:     doc.Data.UpdatedAt,
	}, nil
}

// FindItemsByIDs resolves the requested menu items, keyed by item ID. Items
// missing from the collection or belonging to another shop are simply absent
// from the result; callers decide how to report them.
func (r *CatalogRepository) FindItemsByIDs(ctx context.Context, shopID string, itemIDs []string) (map[string]domain.MenuItem, error) {
	result := make(map[string]domain.MenuItem, len(itemIDs))
	seen := make(map[string]struct{}, len(itemIDs))

	for _, itemID := range itemIDs {
		if itemID == "" {
			continue
		}
		if _, dup := seen[itemID]; dup {
			continue
		}
		seen[itemID] = struct{}{}

		doc, err := r.items.Get(ctx, itemID)
		if err != nil {
			var repoErr *pfirestore.Error
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		if doc.Data.ShopID != shopID {
			continue
		}
		result[doc.ID] = domain.MenuItem{
			ID:          doc.ID,
			ShopID:      doc.Data.ShopID,
			Name:        doc.Data.Name,
			Description: doc.Data.Description,
			Price:       doc.Data.Price,
			Available:   doc.Data.Available,
		}
	}
	return result, nil
}
