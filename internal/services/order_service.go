package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/mealbridge/api/internal/domain"
	"github.com/mealbridge/api/internal/repositories"
)

// Sentinel errors surfaced by OrderService. Handlers translate them into the
// API error envelope.
var (
	ErrOrderInvalidInput  = errors.New("order: invalid input")
	ErrOrderForbidden     = errors.New("order: forbidden access")
	ErrOrderNotFound      = errors.New("order: resource not found")
	ErrOrderConflict      = errors.New("order: conflict")
	ErrOrderTotalMismatch = errors.New("order: declared total does not match computed total")
	ErrOrderOwnerMismatch = errors.New("order: order does not belong to caller")
	ErrOrderHistoryEmpty  = errors.New("order: status history is empty")
	ErrOrderUnavailable   = errors.New("order: backing store unavailable")
)

const (
	orderIDPrefix          = "ord_"
	orderStatusLogIDPrefix = "osl_"

	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventCancelled     = "order.cancelled"
)

// OrderServiceDeps wires the collaborators of the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	History    repositories.OrderHistoryRepository
	Catalog    repositories.CatalogRepository
	UnitOfWork repositories.UnitOfWork

	// Optional. Defaults cover production usage; tests override for determinism.
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders  repositories.OrderRepository
	history repositories.OrderHistoryRepository
	catalog repositories.CatalogRepository
	uow     repositories.UnitOfWork

	clock  func() time.Time
	nextID func() string
	events OrderEventPublisher
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService validates dependencies and builds the order service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service requires order repository")
	}
	if deps.History == nil {
		return nil, errors.New("order service requires order history repository")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service requires catalog repository")
	}

	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	nextID := deps.IDGenerator
	if nextID == nil {
		nextID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:  deps.Orders,
		history: deps.History,
		catalog: deps.Catalog,
		uow:     uow,
		clock:   func() time.Time { return clock().UTC() },
		nextID:  nextID,
		events:  deps.Events,
		logger:  logger,
	}, nil
}

// Create assembles and persists a new pending order. The order document, its
// line items, and the initial history entry commit as one atomic unit.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := requireRole(cmd.Principal, domain.RoleCustomer); err != nil {
		return Order{}, err
	}
	shopID := strings.TrimSpace(cmd.ShopID)
	if shopID == "" {
		return Order{}, fmt.Errorf("%w: shop id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one item", ErrOrderInvalidInput)
	}

	shop, err := s.catalog.FindShopByID(ctx, shopID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !shop.Open {
		return Order{}, fmt.Errorf("%w: shop %s is closed", ErrOrderInvalidInput, shop.ID)
	}

	itemIDs := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		itemIDs = append(itemIDs, item.ItemID)
	}
	menu, err := s.catalog.FindItemsByIDs(ctx, shop.ID, itemIDs)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	order, err := buildOrder(cmd, shop, menu, orderIDPrefix+s.nextID(), now)
	if err != nil {
		return Order{}, err
	}
	if order.TotalPrice != cmd.DeclaredTotal {
		return Order{}, fmt.Errorf("%w: declared %d, computed %d", ErrOrderTotalMismatch, cmd.DeclaredTotal, order.TotalPrice)
	}

	entry := domain.OrderStatusLog{
		ID:        orderStatusLogIDPrefix + s.nextID(),
		OrderID:   order.ID,
		Status:    order.Status,
		CreatedAt: now,
	}
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}
		return s.history.Append(txCtx, entry)
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventCreated,
		OrderID:    order.ID,
		ShopID:     order.ShopID,
		UserID:     order.UserID,
		Status:     order.Status,
		OccurredAt: now,
	})
	return order, nil
}

// ListForCustomer pages through the caller's own orders.
func (s *orderService) ListForCustomer(ctx context.Context, query CustomerOrdersQuery) (domain.Page[OrderSummary], error) {
	if err := requireRole(query.Principal, domain.RoleCustomer); err != nil {
		return domain.Page[OrderSummary]{}, err
	}

	page, err := s.orders.ListByUser(ctx, query.Principal.UserID, repositories.OrderListQuery{
		Page:   query.Page,
		Size:   query.Size,
		SortBy: query.SortBy,
		Order:  query.Order,
	})
	if err != nil {
		return domain.Page[OrderSummary]{}, s.mapRepositoryError(err)
	}

	summaries := make([]OrderSummary, 0, len(page.Items))
	for _, order := range page.Items {
		summaries = append(summaries, OrderSummary{
			ID:         order.ID,
			ShopID:     order.ShopID,
			Name:       order.Name,
			Status:     order.Status,
			TotalPrice: order.TotalPrice,
			CreatedAt:  order.CreatedAt,
		})
	}
	return domain.Page[OrderSummary]{
		Items:   summaries,
		Page:    page.Page,
		Size:    page.Size,
		HasNext: page.HasNext,
	}, nil
}

// Get returns the full order, visible only to the customer who placed it.
// Orders belonging to other customers are reported as missing rather than
// forbidden so order IDs cannot be probed.
func (s *orderService) Get(ctx context.Context, orderID string, principal Principal) (Order, error) {
	if err := requireRole(principal, domain.RoleCustomer); err != nil {
		return Order{}, err
	}
	order, err := s.loadOwnOrder(ctx, orderID, principal)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// TransitionStatus advances an order's lifecycle on behalf of the shop owner.
// Cancellation is a customer operation and is rejected here.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (Order, error) {
	if err := requireRole(cmd.Principal, domain.RoleOwner); err != nil {
		return Order{}, err
	}
	target, err := domain.ParseOrderStatus(cmd.Target)
	if err != nil {
		return Order{}, err
	}
	if target == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: cancellation is a customer operation", ErrOrderInvalidInput)
	}

	// Load, guard, and write inside one transaction so concurrent status
	// changes serialize per order.
	var (
		order    Order
		previous domain.OrderStatus
		now      time.Time
	)
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		shop, err := s.catalog.FindShopByID(txCtx, order.ShopID)
		if err != nil {
			return err
		}
		if shop.OwnerID != cmd.Principal.UserID {
			return fmt.Errorf("%w: shop %s is not owned by caller", ErrOrderForbidden, shop.ID)
		}

		now = s.clock()
		previous = order.Status
		if err := order.Transition(target, now); err != nil {
			return err
		}

		entry := domain.OrderStatusLog{
			ID:        orderStatusLogIDPrefix + s.nextID(),
			OrderID:   order.ID,
			Status:    order.Status,
			CreatedAt: now,
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		return s.history.Append(txCtx, entry)
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		ShopID:         order.ShopID,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		OccurredAt:     now,
	})
	return order, nil
}

// StatusHistory returns the order's append-only status log, newest first.
func (s *orderService) StatusHistory(ctx context.Context, orderID string, principal Principal) (OrderStatusHistory, error) {
	if err := requireRole(principal, domain.RoleCustomer); err != nil {
		return OrderStatusHistory{}, err
	}
	order, err := s.loadOwnOrder(ctx, orderID, principal)
	if err != nil {
		return OrderStatusHistory{}, err
	}

	entries, err := s.history.ListByOrder(ctx, order.ID)
	if err != nil {
		return OrderStatusHistory{}, s.mapRepositoryError(err)
	}
	if len(entries) == 0 {
		return OrderStatusHistory{}, fmt.Errorf("%w: order %s", ErrOrderHistoryEmpty, order.ID)
	}
	return OrderStatusHistory{
		OrderID:       order.ID,
		CurrentStatus: order.Status,
		Entries:       entries,
	}, nil
}

// Cancel voids a pending order within the cancellation window. The status
// update and the history entry commit atomically.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (CancellationReceipt, error) {
	if err := requireRole(cmd.Principal, domain.RoleCustomer); err != nil {
		return CancellationReceipt{}, err
	}

	// The pending-and-within-window guard must see the committed status, so
	// the load and the write share one transaction. A cancel racing an owner
	// transition loses instead of overwriting it.
	var (
		order Order
		now   time.Time
	)
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != cmd.Principal.UserID {
			return fmt.Errorf("%w: order %s", ErrOrderOwnerMismatch, order.ID)
		}

		now = s.clock()
		if err := order.Transition(domain.OrderStatusCancelled, now); err != nil {
			return err
		}

		entry := domain.OrderStatusLog{
			ID:        orderStatusLogIDPrefix + s.nextID(),
			OrderID:   order.ID,
			Status:    order.Status,
			CreatedAt: now,
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		return s.history.Append(txCtx, entry)
	})
	if err != nil {
		return CancellationReceipt{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventCancelled,
		OrderID:    order.ID,
		ShopID:     order.ShopID,
		UserID:     order.UserID,
		Status:     order.Status,
		OccurredAt: now,
	})
	return CancellationReceipt{
		OrderID:      order.ID,
		Status:       order.Status,
		RefundAmount: order.TotalPrice,
		CancelledAt:  now,
	}, nil
}

// loadOwnOrder fetches an order and verifies the caller placed it.
func (s *orderService) loadOwnOrder(ctx context.Context, orderID string, principal Principal) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != principal.UserID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

// requireRole gates an operation on the caller's role.
func requireRole(principal Principal, role domain.Role) error {
	if principal.UserID == "" {
		return fmt.Errorf("%w: missing principal", ErrOrderForbidden)
	}
	if principal.Role != role {
		return fmt.Errorf("%w: role %s", ErrOrderForbidden, principal.Role)
	}
	return nil
}

// noopUnitOfWork runs the function directly without transactional scope. Used
// when no unit of work is configured, primarily in tests.
type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
