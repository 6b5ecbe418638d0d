package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/mealbridge/api/internal/domain"
	"github.com/mealbridge/api/internal/repositories"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubOrderRepo struct {
	insertFn func(ctx context.Context, order domain.Order) error
	updateFn func(ctx context.Context, order domain.Order) error
	findFn   func(ctx context.Context, orderID string) (domain.Order, error)
	listFn   func(ctx context.Context, userID string, query repositories.OrderListQuery) (domain.Page[domain.Order], error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, order)
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn == nil {
		return domain.Order{}, errors.New("findFn not set")
	}
	return s.findFn(ctx, orderID)
}

func (s *stubOrderRepo) ListByUser(ctx context.Context, userID string, query repositories.OrderListQuery) (domain.Page[domain.Order], error) {
	if s.listFn == nil {
		return domain.Page[domain.Order]{}, nil
	}
	return s.listFn(ctx, userID, query)
}

type stubHistoryRepo struct {
	appendFn func(ctx context.Context, entry domain.OrderStatusLog) error
	listFn   func(ctx context.Context, orderID string) ([]domain.OrderStatusLog, error)
}

func (s *stubHistoryRepo) Append(ctx context.Context, entry domain.OrderStatusLog) error {
	if s.appendFn == nil {
		return nil
	}
	return s.appendFn(ctx, entry)
}

func (s *stubHistoryRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, orderID)
}

type stubCatalogRepo struct {
	shopFn  func(ctx context.Context, shopID string) (domain.Shop, error)
	itemsFn func(ctx context.Context, shopID string, itemIDs []string) (map[string]domain.MenuItem, error)
}

func (s *stubCatalogRepo) FindShopByID(ctx context.Context, shopID string) (domain.Shop, error) {
	if s.shopFn == nil {
		return domain.Shop{}, errors.New("shopFn not set")
	}
	return s.shopFn(ctx, shopID)
}

func (s *stubCatalogRepo) FindItemsByIDs(ctx context.Context, shopID string, itemIDs []string) (map[string]domain.MenuItem, error) {
	if s.itemsFn == nil {
		return nil, errors.New("itemsFn not set")
	}
	return s.itemsFn(ctx, shopID, itemIDs)
}

type stubPublisher struct {
	events []OrderEvent
	err    error
}

func (s *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func sequenceIDs(prefixless ...string) func() string {
	i := 0
	return func() string {
		if i >= len(prefixless) {
			return fmt.Sprintf("overflow-%d", i)
		}
		id := prefixless[i]
		i++
		return id
	}
}

func testShop() domain.Shop {
	return domain.Shop{ID: "shop-1", OwnerID: "owner-1", Name: "Gimbap Heaven", Open: true}
}

func testMenu() map[string]domain.MenuItem {
	return map[string]domain.MenuItem{
		"item-1": {ID: "item-1", ShopID: "shop-1", Name: "Bulgogi Bowl", Price: 9000, Available: true},
		"item-2": {ID: "item-2", ShopID: "shop-1", Name: "Kimchi Fries", Price: 4500, Available: true},
	}
}

func customer() Principal {
	return Principal{UserID: "user-1", Role: domain.RoleCustomer}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return testNow }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequenceIDs("01", "02", "03", "04")
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestOrderServiceCreate(t *testing.T) {
	var inserted *domain.Order
	var appended *domain.OrderStatusLog
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			insertFn: func(_ context.Context, order domain.Order) error {
				inserted = &order
				return nil
			},
		},
		History: &stubHistoryRepo{
			appendFn: func(_ context.Context, entry domain.OrderStatusLog) error {
				appended = &entry
				return nil
			},
		},
		Catalog: &stubCatalogRepo{
			shopFn: func(_ context.Context, shopID string) (domain.Shop, error) {
				return testShop(), nil
			},
			itemsFn: func(_ context.Context, _ string, _ []string) (map[string]domain.MenuItem, error) {
				return testMenu(), nil
			},
		},
		Events: publisher,
	})

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		Principal: customer(),
		ShopID:    "shop-1",
		Items: []OrderItemRequest{
			{ItemID: "item-1", Quantity: 2},
			{ItemID: "item-2", Quantity: 1},
		},
		Address:       domain.Address{Road: "123 Main St", Zip: "04524"},
		Phone:         "010-1234-5678",
		OrderNote:     "extra napkins <script>alert(1)</script>",
		DeclaredTotal: 22500,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.ID != "ord_01" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.TotalPrice != 22500 {
		t.Fatalf("unexpected total %d", order.TotalPrice)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if order.Name != "Bulgogi Bowl + 1 more" {
		t.Fatalf("unexpected name %q", order.Name)
	}
	if order.OrderNote != "extra napkins" {
		t.Fatalf("note not sanitized: %q", order.OrderNote)
	}
	if inserted == nil || inserted.ID != order.ID {
		t.Fatalf("order not persisted")
	}
	if appended == nil || appended.OrderID != order.ID || appended.Status != domain.OrderStatusPending {
		t.Fatalf("initial history entry not appended: %+v", appended)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %+v", publisher.events)
	}
}

func TestOrderServiceCreateTotalMismatch(t *testing.T) {
	insertCalled := false
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			insertFn: func(context.Context, domain.Order) error {
				insertCalled = true
				return nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{
			shopFn: func(context.Context, string) (domain.Shop, error) { return testShop(), nil },
			itemsFn: func(context.Context, string, []string) (map[string]domain.MenuItem, error) {
				return testMenu(), nil
			},
		},
	})

	_, err := svc.Create(context.Background(), CreateOrderCommand{
		Principal:     customer(),
		ShopID:        "shop-1",
		Items:         []OrderItemRequest{{ItemID: "item-1", Quantity: 2}},
		DeclaredTotal: 30000,
	})
	if !errors.Is(err, ErrOrderTotalMismatch) {
		t.Fatalf("expected total mismatch, got %v", err)
	}
	if insertCalled {
		t.Fatalf("order must not be persisted on total mismatch")
	}
}

func TestOrderServiceCreateUnknownItem(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:  &stubOrderRepo{},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{
			shopFn: func(context.Context, string) (domain.Shop, error) { return testShop(), nil },
			itemsFn: func(context.Context, string, []string) (map[string]domain.MenuItem, error) {
				return map[string]domain.MenuItem{}, nil
			},
		},
	})

	_, err := svc.Create(context.Background(), CreateOrderCommand{
		Principal:     customer(),
		ShopID:        "shop-1",
		Items:         []OrderItemRequest{{ItemID: "ghost", Quantity: 1}},
		DeclaredTotal: 100,
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceCreateRequiresCustomer(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:  &stubOrderRepo{},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Create(context.Background(), CreateOrderCommand{
		Principal: Principal{UserID: "owner-1", Role: domain.RoleOwner},
		ShopID:    "shop-1",
		Items:     []OrderItemRequest{{ItemID: "item-1", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOrderServiceGetHidesForeignOrders(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "someone-else"}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Get(context.Background(), "ord_x", customer())
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
}

func TestOrderServiceGetMapsRepositoryNotFound(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) {
				return domain.Order{}, &stubRepoError{notFound: true}
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Get(context.Background(), "ord_missing", customer())
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceGetMapsRepositoryUnavailable(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) {
				return domain.Order{}, &stubRepoError{unavailable: true}
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Get(context.Background(), "ord_1", customer())
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestOrderServiceListForCustomer(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			listFn: func(_ context.Context, userID string, query repositories.OrderListQuery) (domain.Page[domain.Order], error) {
				if userID != "user-1" {
					t.Fatalf("unexpected user id %q", userID)
				}
				return domain.Page[domain.Order]{
					Items: []domain.Order{
						{ID: "ord_a", ShopID: "shop-1", Name: "Bulgogi Bowl", Status: domain.OrderStatusPending, TotalPrice: 9000, CreatedAt: testNow},
					},
					Page:    2,
					Size:    10,
					HasNext: true,
				}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	page, err := svc.ListForCustomer(context.Background(), CustomerOrdersQuery{
		Principal: customer(),
		Page:      2,
		Size:      10,
	})
	if err != nil {
		t.Fatalf("ListForCustomer: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ord_a" {
		t.Fatalf("unexpected page items: %+v", page.Items)
	}
	if !page.HasNext || page.Page != 2 {
		t.Fatalf("pagination metadata lost: %+v", page)
	}
}

func TestOrderServiceTransitionStatus(t *testing.T) {
	var updated *domain.Order
	var appended *domain.OrderStatusLog
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{
					ID:        orderID,
					UserID:    "user-1",
					ShopID:    "shop-1",
					Status:    domain.OrderStatusAccepted,
					CreatedAt: testNow.Add(-time.Hour),
				}, nil
			},
			updateFn: func(_ context.Context, order domain.Order) error {
				updated = &order
				return nil
			},
		},
		History: &stubHistoryRepo{
			appendFn: func(_ context.Context, entry domain.OrderStatusLog) error {
				appended = &entry
				return nil
			},
		},
		Catalog: &stubCatalogRepo{
			shopFn: func(context.Context, string) (domain.Shop, error) { return testShop(), nil },
		},
		Events: publisher,
	})

	order, err := svc.TransitionStatus(context.Background(), TransitionOrderCommand{
		Principal: Principal{UserID: "owner-1", Role: domain.RoleOwner},
		OrderID:   "ord_a",
		Target:    "PREPARING",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusPreparing {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if updated == nil || updated.Status != domain.OrderStatusPreparing {
		t.Fatalf("order update not persisted")
	}
	if appended == nil || appended.Status != domain.OrderStatusPreparing {
		t.Fatalf("history entry not appended")
	}
	if len(publisher.events) != 1 || publisher.events[0].PreviousStatus != domain.OrderStatusAccepted {
		t.Fatalf("expected status_changed event with previous status, got %+v", publisher.events)
	}
}

func TestOrderServiceTransitionStatusForeignShop(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, ShopID: "shop-1", Status: domain.OrderStatusAccepted}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{
			shopFn: func(context.Context, string) (domain.Shop, error) { return testShop(), nil },
		},
	})

	_, err := svc.TransitionStatus(context.Background(), TransitionOrderCommand{
		Principal: Principal{UserID: "other-owner", Role: domain.RoleOwner},
		OrderID:   "ord_a",
		Target:    "PREPARING",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOrderServiceTransitionStatusRejectsUnknownTarget(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:  &stubOrderRepo{},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.TransitionStatus(context.Background(), TransitionOrderCommand{
		Principal: Principal{UserID: "owner-1", Role: domain.RoleOwner},
		OrderID:   "ord_a",
		Target:    "SHIPPED",
	})
	if !errors.Is(err, domain.ErrUnknownOrderStatus) {
		t.Fatalf("expected unknown status, got %v", err)
	}
}

func TestOrderServiceTransitionStatusRejectsCancellation(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:  &stubOrderRepo{},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.TransitionStatus(context.Background(), TransitionOrderCommand{
		Principal: Principal{UserID: "owner-1", Role: domain.RoleOwner},
		OrderID:   "ord_a",
		Target:    "ORDER_CANCELLED",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceStatusHistory(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusPreparing}, nil
			},
		},
		History: &stubHistoryRepo{
			listFn: func(_ context.Context, orderID string) ([]domain.OrderStatusLog, error) {
				return []domain.OrderStatusLog{
					{ID: "osl_2", OrderID: orderID, Status: domain.OrderStatusPreparing, CreatedAt: testNow},
					{ID: "osl_1", OrderID: orderID, Status: domain.OrderStatusPending, CreatedAt: testNow.Add(-time.Minute)},
				}, nil
			},
		},
		Catalog: &stubCatalogRepo{},
	})

	history, err := svc.StatusHistory(context.Background(), "ord_a", customer())
	if err != nil {
		t.Fatalf("StatusHistory: %v", err)
	}
	if history.CurrentStatus != domain.OrderStatusPreparing {
		t.Fatalf("unexpected current status %s", history.CurrentStatus)
	}
	if len(history.Entries) != 2 || history.Entries[0].ID != "osl_2" {
		t.Fatalf("unexpected entries: %+v", history.Entries)
	}
}

func TestOrderServiceStatusHistoryEmpty(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "user-1"}, nil
			},
		},
		History: &stubHistoryRepo{
			listFn: func(context.Context, string) ([]domain.OrderStatusLog, error) { return nil, nil },
		},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.StatusHistory(context.Background(), "ord_a", customer())
	if !errors.Is(err, ErrOrderHistoryEmpty) {
		t.Fatalf("expected empty history error, got %v", err)
	}
}

func TestOrderServiceCancel(t *testing.T) {
	var updated *domain.Order
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{
					ID:         orderID,
					UserID:     "user-1",
					ShopID:     "shop-1",
					Status:     domain.OrderStatusPending,
					TotalPrice: 22500,
					CreatedAt:  testNow.Add(-2 * time.Minute),
				}, nil
			},
			updateFn: func(_ context.Context, order domain.Order) error {
				updated = &order
				return nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
		Events:  publisher,
	})

	receipt, err := svc.Cancel(context.Background(), CancelOrderCommand{
		Principal: customer(),
		OrderID:   "ord_a",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if receipt.Status != domain.OrderStatusCancelled || receipt.RefundAmount != 22500 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if updated == nil || updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("cancelled order not persisted")
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.cancelled" {
		t.Fatalf("expected order.cancelled event, got %+v", publisher.events)
	}
}

// hookUnitOfWork runs a hook before the transactional closure, standing in for
// a write committed by a concurrent request just ahead of this transaction.
type hookUnitOfWork struct {
	before func()
}

func (u hookUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.before != nil {
		u.before()
	}
	return fn(ctx)
}

func TestOrderServiceCancelSeesConcurrentlyAcceptedOrder(t *testing.T) {
	stored := domain.Order{
		ID:        "ord_a",
		UserID:    "user-1",
		ShopID:    "shop-1",
		Status:    domain.OrderStatusPending,
		CreatedAt: testNow.Add(-2 * time.Minute),
	}
	updates := 0

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				updates++
				stored = order
				return nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
		UnitOfWork: hookUnitOfWork{before: func() {
			stored.Status = domain.OrderStatusAccepted
		}},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{Principal: customer(), OrderID: "ord_a"})
	if !errors.Is(err, domain.ErrCancelNotAllowed) {
		t.Fatalf("expected ErrCancelNotAllowed, got %v", err)
	}
	if updates != 0 {
		t.Fatalf("cancel overwrote a concurrently accepted order")
	}
	if stored.Status != domain.OrderStatusAccepted {
		t.Fatalf("stored status = %s, want %s", stored.Status, domain.OrderStatusAccepted)
	}
}

func TestOrderServiceTransitionStatusReadsInsideTransaction(t *testing.T) {
	stored := domain.Order{
		ID:        "ord_a",
		UserID:    "user-1",
		ShopID:    "shop-1",
		Status:    domain.OrderStatusAccepted,
		CreatedAt: testNow.Add(-time.Hour),
	}
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				stored = order
				return nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{
			shopFn: func(context.Context, string) (domain.Shop, error) { return testShop(), nil },
		},
		Events: publisher,
		UnitOfWork: hookUnitOfWork{before: func() {
			stored.Status = domain.OrderStatusPreparing
		}},
	})

	order, err := svc.TransitionStatus(context.Background(), TransitionOrderCommand{
		Principal: Principal{UserID: "owner-1", Role: domain.RoleOwner},
		OrderID:   "ord_a",
		Target:    "DELIVERING",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDelivering {
		t.Fatalf("unexpected status %s", order.Status)
	}
	// The event's previous status reflects the state committed just before the
	// transaction, not a stale pre-transaction read.
	if len(publisher.events) != 1 || publisher.events[0].PreviousStatus != domain.OrderStatusPreparing {
		t.Fatalf("expected previous status %s, got %+v", domain.OrderStatusPreparing, publisher.events)
	}
}

func TestOrderServiceCancelAfterWindow(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{
					ID:        orderID,
					UserID:    "user-1",
					Status:    domain.OrderStatusPending,
					CreatedAt: testNow.Add(-6 * time.Minute),
				}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{Principal: customer(), OrderID: "ord_a"})
	if !errors.Is(err, domain.ErrCancelWindowExceeded) {
		t.Fatalf("expected window exceeded, got %v", err)
	}
}

func TestOrderServiceCancelNonPending(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{
					ID:        orderID,
					UserID:    "user-1",
					Status:    domain.OrderStatusAccepted,
					CreatedAt: testNow.Add(-time.Minute),
				}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{Principal: customer(), OrderID: "ord_a"})
	if !errors.Is(err, domain.ErrCancelNotAllowed) {
		t.Fatalf("expected cancel not allowed, got %v", err)
	}
}

func TestOrderServiceCancelForeignOrder(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "someone-else", Status: domain.OrderStatusPending, CreatedAt: testNow}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{Principal: customer(), OrderID: "ord_a"})
	if !errors.Is(err, ErrOrderOwnerMismatch) {
		t.Fatalf("expected owner mismatch, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailOperation(t *testing.T) {
	logged := false
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusPending, TotalPrice: 100, CreatedAt: testNow}, nil
			},
		},
		History: &stubHistoryRepo{},
		Catalog: &stubCatalogRepo{},
		Events:  &stubPublisher{err: errors.New("broker down")},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			if event == "order.event.publish.failed" {
				logged = true
			}
		},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{Principal: customer(), OrderID: "ord_a"})
	if err != nil {
		t.Fatalf("Cancel should succeed despite publish failure: %v", err)
	}
	if !logged {
		t.Fatalf("publish failure was not logged")
	}
}
