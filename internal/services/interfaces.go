package services

import (
	"context"
	"time"

	domain "github.com/mealbridge/api/internal/domain"
)

// Type aliases keep handler and service signatures on the shared domain vocabulary.
type (
	Order          = domain.Order
	OrderItemLine  = domain.OrderItemLine
	OrderStatusLog = domain.OrderStatusLog
	Payment        = domain.Payment
	Principal      = domain.Principal
)

// OrderItemRequest identifies one menu item and quantity in a create command.
type OrderItemRequest struct {
	ItemID   string
	Quantity int
}

// CreateOrderCommand carries the customer's order submission.
type CreateOrderCommand struct {
	Principal     Principal
	ShopID        string
	Items         []OrderItemRequest
	Address       domain.Address
	Phone         string
	OrderNote     string
	DeliveryNote  string
	DeclaredTotal int64
}

// CustomerOrdersQuery pages through the caller's own orders.
type CustomerOrdersQuery struct {
	Principal Principal
	Page      int
	Size      int
	SortBy    string
	Order     domain.SortOrder
}

// OrderSummary is the listing projection of an order.
type OrderSummary struct {
	ID         string
	ShopID     string
	Name       string
	Status     domain.OrderStatus
	TotalPrice int64
	CreatedAt  time.Time
}

// TransitionOrderCommand moves an order to a new lifecycle status.
type TransitionOrderCommand struct {
	Principal Principal
	OrderID   string
	Target    string
}

// CancelOrderCommand cancels a pending order on behalf of its customer.
type CancelOrderCommand struct {
	Principal Principal
	OrderID   string
}

// CancellationReceipt reports the outcome of a successful cancellation.
type CancellationReceipt struct {
	OrderID      string
	Status       domain.OrderStatus
	RefundAmount int64
	CancelledAt  time.Time
}

// OrderStatusHistory pairs the order's current status with its append-only log.
type OrderStatusHistory struct {
	OrderID       string
	CurrentStatus domain.OrderStatus
	Entries       []OrderStatusLog
}

// OrderEvent is published after order state changes commit.
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"orderId"`
	ShopID         string             `json:"shopId,omitempty"`
	UserID         string             `json:"userId,omitempty"`
	Status         domain.OrderStatus `json:"status,omitempty"`
	PreviousStatus domain.OrderStatus `json:"previousStatus,omitempty"`
	OccurredAt     time.Time          `json:"occurredAt"`
}

// OrderEventPublisher delivers order events to interested consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderService orchestrates the customer and shop owner order operations.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListForCustomer(ctx context.Context, query CustomerOrdersQuery) (domain.Page[OrderSummary], error)
	Get(ctx context.Context, orderID string, principal Principal) (Order, error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (Order, error)
	StatusHistory(ctx context.Context, orderID string, principal Principal) (OrderStatusHistory, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (CancellationReceipt, error)
}

// RequestPaymentCommand opens a payment record for an order.
type RequestPaymentCommand struct {
	Principal Principal
	OrderID   string
	Method    string
}

// ConfirmPaymentCommand finalises a requested payment.
type ConfirmPaymentCommand struct {
	Principal      Principal
	PaymentID      string
	TransactionKey string
}

// CancelPaymentCommand refunds part or all of a confirmed payment.
type CancelPaymentCommand struct {
	Principal Principal
	PaymentID string
	Amount    int64
}

// PaymentService tracks the money side of orders, including stale-payment expiry.
type PaymentService interface {
	Request(ctx context.Context, cmd RequestPaymentCommand) (Payment, error)
	Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (Payment, error)
	CancelAmount(ctx context.Context, cmd CancelPaymentCommand) (Payment, error)
	Abort(ctx context.Context, paymentID string, principal Principal) (Payment, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}
