package domain

import (
	"time"
)

// Role identifies the kind of authenticated caller.
type Role string

const (
	// RoleCustomer places and manages their own orders.
	RoleCustomer Role = "CUSTOMER"
	// RoleOwner operates a shop and drives accepted orders forward.
	RoleOwner Role = "OWNER"
	// RoleAdmin has operational access across shops.
	RoleAdmin Role = "ADMIN"
)

// Principal is the authenticated caller threaded through service operations.
type Principal struct {
	UserID string
	Role   Role
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Page wraps a single page of results from an offset-paged listing.
type Page[T any] struct {
	Items   []T
	Page    int
	Size    int
	HasNext bool
}

// Address is the delivery destination snapshot captured at order time.
type Address struct {
	Road   string
	Detail string
	Zip    string
}

// Shop is the seller-side aggregate customers order against.
type Shop struct {
	ID            string
	OwnerID       string
	Name          string
	Phone         string
	MinOrderPrice int64
	DeliveryFee   int64
	Open          bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MenuItem is a purchasable entry on a shop's menu. Prices are minor units.
type MenuItem struct {
	ID          string
	ShopID      string
	Name        string
	Description string
	Price       int64
	Available   bool
}

// PaymentStatus tracks the money side of an order.
//
// SUCCESS models a client-reported gateway success that the server has not yet
// confirmed; the expiration sweep reaps records stuck in this state.
type PaymentStatus string

const (
	// PaymentStatusSuccess indicates the payment was requested and awaits confirmation.
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	// PaymentStatusDone indicates the payment was confirmed server-side.
	PaymentStatusDone PaymentStatus = "DONE"
	// PaymentStatusCanceled indicates the full amount was refunded.
	PaymentStatusCanceled PaymentStatus = "CANCELED"
	// PaymentStatusPartialCanceled indicates part of the amount was refunded.
	PaymentStatusPartialCanceled PaymentStatus = "PARTIAL_CANCELED"
	// PaymentStatusAborted indicates the payment was abandoned before confirmation.
	PaymentStatusAborted PaymentStatus = "ABORTED"
	// PaymentStatusExpired indicates the sweep reaped an unconfirmed payment.
	PaymentStatusExpired PaymentStatus = "EXPIRED"
)

// Payment records a single payment attempt for an order.
type Payment struct {
	ID             string
	OrderID        string
	UserID         string
	OrderName      string
	Method         string
	TotalAmount    int64
	BalanceAmount  int64
	Status         PaymentStatus
	TransactionKey string
	RequestedAt    time.Time
	ApprovedAt     *time.Time
	UpdatedAt      time.Time
}
