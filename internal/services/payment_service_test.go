package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/mealbridge/api/internal/domain"
)

type stubPaymentRepo struct {
	insertFn      func(ctx context.Context, payment domain.Payment) error
	updateFn      func(ctx context.Context, payment domain.Payment) error
	findFn        func(ctx context.Context, paymentID string) (domain.Payment, error)
	findByOrderFn func(ctx context.Context, orderID string) (domain.Payment, error)
	listStaleFn   func(ctx context.Context, cutoff time.Time) ([]domain.Payment, error)
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, payment)
}

func (s *stubPaymentRepo) Update(ctx context.Context, payment domain.Payment) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, payment)
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findFn == nil {
		return domain.Payment{}, errors.New("findFn not set")
	}
	return s.findFn(ctx, paymentID)
}

func (s *stubPaymentRepo) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	if s.findByOrderFn == nil {
		return domain.Payment{}, &stubRepoError{notFound: true}
	}
	return s.findByOrderFn(ctx, orderID)
}

func (s *stubPaymentRepo) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Payment, error) {
	if s.listStaleFn == nil {
		return nil, nil
	}
	return s.listStaleFn(ctx, cutoff)
}

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return testNow }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequenceIDs("01", "02")
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return svc
}

func TestPaymentServiceRequest(t *testing.T) {
	var inserted *domain.Payment
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			insertFn: func(_ context.Context, payment domain.Payment) error {
				inserted = &payment
				return nil
			},
		},
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "user-1", Name: "Bulgogi Bowl", TotalPrice: 9000}, nil
			},
		},
	})

	payment, err := svc.Request(context.Background(), RequestPaymentCommand{
		Principal: customer(),
		OrderID:   "ord_a",
		Method:    "CARD",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if payment.ID != "pay_01" {
		t.Fatalf("unexpected payment id %q", payment.ID)
	}
	if payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("unexpected status %s", payment.Status)
	}
	if payment.TotalAmount != 9000 || payment.BalanceAmount != 9000 {
		t.Fatalf("unexpected amounts: %+v", payment)
	}
	if inserted == nil || inserted.OrderName != "Bulgogi Bowl" {
		t.Fatalf("payment not persisted: %+v", inserted)
	}
}

func TestPaymentServiceRequestDuplicate(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findByOrderFn: func(_ context.Context, orderID string) (domain.Payment, error) {
				return domain.Payment{ID: "pay_existing", OrderID: orderID}, nil
			},
		},
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "user-1", TotalPrice: 9000}, nil
			},
		},
	})

	_, err := svc.Request(context.Background(), RequestPaymentCommand{
		Principal: customer(),
		OrderID:   "ord_a",
		Method:    "CARD",
	})
	if !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPaymentServiceRequestForeignOrder(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{},
		Orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, UserID: "someone-else"}, nil
			},
		},
	})

	_, err := svc.Request(context.Background(), RequestPaymentCommand{
		Principal: customer(),
		OrderID:   "ord_a",
		Method:    "CARD",
	})
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
}

func TestPaymentServiceConfirm(t *testing.T) {
	var updated *domain.Payment
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				return domain.Payment{
					ID:            paymentID,
					UserID:        "user-1",
					Status:        domain.PaymentStatusSuccess,
					TotalAmount:   9000,
					BalanceAmount: 9000,
					RequestedAt:   testNow.Add(-time.Minute),
				}, nil
			},
			updateFn: func(_ context.Context, payment domain.Payment) error {
				updated = &payment
				return nil
			},
		},
	})

	payment, err := svc.Confirm(context.Background(), ConfirmPaymentCommand{
		Principal:      customer(),
		PaymentID:      "pay_a",
		TransactionKey: "txn-123",
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if payment.Status != domain.PaymentStatusDone {
		t.Fatalf("unexpected status %s", payment.Status)
	}
	if payment.ApprovedAt == nil || !payment.ApprovedAt.Equal(testNow) {
		t.Fatalf("approvedAt not recorded: %+v", payment.ApprovedAt)
	}
	if updated == nil || updated.TransactionKey != "txn-123" {
		t.Fatalf("confirmation not persisted: %+v", updated)
	}
}

func TestPaymentServiceConfirmWrongState(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				return domain.Payment{ID: paymentID, UserID: "user-1", Status: domain.PaymentStatusExpired}, nil
			},
		},
	})

	_, err := svc.Confirm(context.Background(), ConfirmPaymentCommand{
		Principal:      customer(),
		PaymentID:      "pay_a",
		TransactionKey: "txn-123",
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestPaymentServiceCancelAmountPartial(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				return domain.Payment{
					ID:            paymentID,
					UserID:        "user-1",
					Status:        domain.PaymentStatusDone,
					TotalAmount:   9000,
					BalanceAmount: 9000,
				}, nil
			},
		},
	})

	payment, err := svc.CancelAmount(context.Background(), CancelPaymentCommand{
		Principal: customer(),
		PaymentID: "pay_a",
		Amount:    4000,
	})
	if err != nil {
		t.Fatalf("CancelAmount: %v", err)
	}
	if payment.Status != domain.PaymentStatusPartialCanceled || payment.BalanceAmount != 5000 {
		t.Fatalf("unexpected payment after partial cancel: %+v", payment)
	}
}

func TestPaymentServiceCancelAmountFull(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				return domain.Payment{
					ID:            paymentID,
					UserID:        "user-1",
					Status:        domain.PaymentStatusPartialCanceled,
					TotalAmount:   9000,
					BalanceAmount: 5000,
				}, nil
			},
		},
	})

	payment, err := svc.CancelAmount(context.Background(), CancelPaymentCommand{
		Principal: customer(),
		PaymentID: "pay_a",
		Amount:    5000,
	})
	if err != nil {
		t.Fatalf("CancelAmount: %v", err)
	}
	if payment.Status != domain.PaymentStatusCanceled || payment.BalanceAmount != 0 {
		t.Fatalf("unexpected payment after full cancel: %+v", payment)
	}
}

func TestPaymentServiceCancelAmountExceedsBalance(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				return domain.Payment{ID: paymentID, UserID: "user-1", Status: domain.PaymentStatusDone, BalanceAmount: 1000}, nil
			},
		},
	})

	_, err := svc.CancelAmount(context.Background(), CancelPaymentCommand{
		Principal: customer(),
		PaymentID: "pay_a",
		Amount:    2000,
	})
	if !errors.Is(err, ErrPaymentAmountExceeded) {
		t.Fatalf("expected amount exceeded, got %v", err)
	}
}

func TestPaymentServiceAbort(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				return domain.Payment{ID: paymentID, UserID: "user-1", Status: domain.PaymentStatusSuccess}, nil
			},
		},
	})

	payment, err := svc.Abort(context.Background(), "pay_a", customer())
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if payment.Status != domain.PaymentStatusAborted {
		t.Fatalf("unexpected status %s", payment.Status)
	}
}

func TestPaymentServiceExpireStale(t *testing.T) {
	stale := []domain.Payment{
		{ID: "pay_old", UserID: "user-1", Status: domain.PaymentStatusSuccess, RequestedAt: testNow.Add(-30 * time.Minute)},
		{ID: "pay_confirmed", UserID: "user-2", Status: domain.PaymentStatusSuccess, RequestedAt: testNow.Add(-20 * time.Minute)},
	}
	updates := map[string]domain.Payment{}

	svc := newTestPaymentService(t, PaymentServiceDeps{
		Payments: &stubPaymentRepo{
			listStaleFn: func(_ context.Context, cutoff time.Time) ([]domain.Payment, error) {
				want := testNow.Add(-10 * time.Minute)
				if !cutoff.Equal(want) {
					t.Fatalf("unexpected cutoff %v, want %v", cutoff, want)
				}
				return stale, nil
			},
			findFn: func(_ context.Context, paymentID string) (domain.Payment, error) {
				for _, payment := range stale {
					if payment.ID == paymentID {
						if paymentID == "pay_confirmed" {
							// Confirmed between the listing and the re-check.
							payment.Status = domain.PaymentStatusDone
						}
						return payment, nil
					}
				}
				return domain.Payment{}, &stubRepoError{notFound: true}
			},
			updateFn: func(_ context.Context, payment domain.Payment) error {
				updates[payment.ID] = payment
				return nil
			},
		},
	})

	expired, err := svc.ExpireStale(context.Background(), testNow)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}
	if updates["pay_old"].Status != domain.PaymentStatusExpired {
		t.Fatalf("stale payment not expired: %+v", updates["pay_old"])
	}
	if _, touched := updates["pay_confirmed"]; touched {
		t.Fatalf("confirmed payment must not be touched by the sweep")
	}
}

func TestPartitionExpirable(t *testing.T) {
	cutoff := testNow.Add(-10 * time.Minute)
	payments := []domain.Payment{
		{ID: "a", Status: domain.PaymentStatusSuccess, RequestedAt: cutoff.Add(-time.Second)},
		{ID: "b", Status: domain.PaymentStatusSuccess, RequestedAt: cutoff.Add(time.Second)},
		{ID: "c", Status: domain.PaymentStatusDone, RequestedAt: cutoff.Add(-time.Hour)},
	}

	expirable, keep := partitionExpirable(payments, cutoff)
	if len(expirable) != 1 || expirable[0].ID != "a" {
		t.Fatalf("unexpected expirable set: %+v", expirable)
	}
	if len(keep) != 2 {
		t.Fatalf("unexpected keep set: %+v", keep)
	}
}
