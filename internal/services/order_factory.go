package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/mealbridge/api/internal/domain"
)

// noteSanitizer strips all markup from customer-supplied notes before they are
// stored or echoed back through the API.
var noteSanitizer = bluemonday.StrictPolicy()

// buildOrder assembles a pending order from the command and the resolved
// catalog data. Prices are snapshotted from the menu at assembly time so later
// menu edits never change what the customer agreed to pay.
func buildOrder(cmd CreateOrderCommand, shop domain.Shop, menu map[string]domain.MenuItem, orderID string, now time.Time) (domain.Order, error) {
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order needs at least one item", ErrOrderInvalidInput)
	}

	lines := make([]domain.OrderItemLine, 0, len(cmd.Items))
	var total int64
	for _, req := range cmd.Items {
		if req.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity for item %s must be positive", ErrOrderInvalidInput, req.ItemID)
		}
		item, ok := menu[req.ItemID]
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: menu item %s", ErrOrderNotFound, req.ItemID)
		}
		if !item.Available {
			return domain.Order{}, fmt.Errorf("%w: menu item %s is not available", ErrOrderInvalidInput, req.ItemID)
		}
		line := domain.OrderItemLine{
			ItemID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: req.Quantity,
		}
		lines = append(lines, line)
		total += line.Subtotal()
	}

	if total < shop.MinOrderPrice {
		return domain.Order{}, fmt.Errorf("%w: order total %d is below shop minimum %d", ErrOrderInvalidInput, total, shop.MinOrderPrice)
	}

	return domain.Order{
		ID:           orderID,
		UserID:       cmd.Principal.UserID,
		ShopID:       shop.ID,
		Name:         orderSummaryName(lines),
		Address:      cmd.Address,
		Phone:        strings.TrimSpace(cmd.Phone),
		OrderNote:    sanitizeNote(cmd.OrderNote),
		DeliveryNote: sanitizeNote(cmd.DeliveryNote),
		TotalPrice:   total,
		Status:       domain.OrderStatusPending,
		Items:        lines,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// orderSummaryName labels the order after its first line item, with a suffix
// counting the remaining distinct items.
func orderSummaryName(lines []domain.OrderItemLine) string {
	if len(lines) == 0 {
		return ""
	}
	if len(lines) == 1 {
		return lines[0].Name
	}
	return fmt.Sprintf("%s + %d more", lines[0].Name, len(lines)-1)
}

func sanitizeNote(note string) string {
	return strings.TrimSpace(noteSanitizer.Sanitize(note))
}
