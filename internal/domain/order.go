package domain

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus enumerates lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits the shop owner's decision.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusAccepted indicates the owner accepted the order.
	OrderStatusAccepted OrderStatus = "ORDER_ACCEPTED"
	// OrderStatusRejected indicates the owner rejected the order.
	OrderStatusRejected OrderStatus = "ORDER_REJECTED"
	// OrderStatusCancelled indicates the customer cancelled the order.
	OrderStatusCancelled OrderStatus = "ORDER_CANCELLED"
	// OrderStatusPreparing indicates the shop is preparing the food.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusDelivering indicates the order is out for delivery.
	OrderStatusDelivering OrderStatus = "DELIVERING"
	// OrderStatusCompleted indicates the order was delivered.
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// CancelWindow bounds how long after creation a customer may cancel.
const CancelWindow = 5 * time.Minute

var (
	// ErrUnknownOrderStatus indicates a status token outside the lifecycle vocabulary.
	ErrUnknownOrderStatus = errors.New("order: unknown status")
	// ErrCancelNotAllowed indicates a cancel attempt on an order no longer pending.
	ErrCancelNotAllowed = errors.New("order: cancel allowed only while pending")
	// ErrCancelWindowExceeded indicates a cancel attempt after the allowed window.
	ErrCancelWindowExceeded = errors.New("order: cancel window exceeded")
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusAccepted:   {},
	OrderStatusRejected:   {},
	OrderStatusCancelled:  {},
	OrderStatusPreparing:  {},
	OrderStatusDelivering: {},
	OrderStatusCompleted:  {},
}

// ParseOrderStatus validates a raw status token.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if _, ok := orderStatuses[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderStatus, raw)
	}
	return status, nil
}

// OrderItemLine snapshots one menu item within an order. Name and Price are
// copied at order time so later menu edits do not rewrite history.
type OrderItemLine struct {
	ItemID   string
	Name     string
	Price    int64
	Quantity int
}

// Subtotal returns the line total in minor units.
func (l OrderItemLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// OrderStatusLog is one append-only entry of an order's status history.
type OrderStatusLog struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	CreatedAt time.Time
}

// Order is the customer-facing aggregate. TotalPrice is minor units.
type Order struct {
	ID           string
	UserID       string
	ShopID       string
	Name         string
	Address      Address
	Phone        string
	OrderNote    string
	DeliveryNote string
	TotalPrice   int64
	Status       OrderStatus
	Items        []OrderItemLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transition moves the order to target, enforcing the cancellation guards.
// Cancellation is only valid from PENDING and within CancelWindow of creation.
// Owner-driven transitions are otherwise permissive; callers validate the
// target token with ParseOrderStatus before reaching the entity.
func (o *Order) Transition(target OrderStatus, now time.Time) error {
	if _, ok := orderStatuses[target]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOrderStatus, target)
	}
	if target == OrderStatusCancelled {
		if o.Status != OrderStatusPending {
			return fmt.Errorf("%w: status %s", ErrCancelNotAllowed, o.Status)
		}
		if now.Sub(o.CreatedAt) >= CancelWindow {
			return fmt.Errorf("%w: ordered at %s", ErrCancelWindowExceeded, o.CreatedAt.Format(time.RFC3339))
		}
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}
