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

// Sentinel errors surfaced by PaymentService.
var (
	ErrPaymentInvalidInput   = errors.New("payment: invalid input")
	ErrPaymentForbidden      = errors.New("payment: forbidden access")
	ErrPaymentNotFound       = errors.New("payment: resource not found")
	ErrPaymentConflict       = errors.New("payment: conflict")
	ErrPaymentInvalidState   = errors.New("payment: operation not allowed in current state")
	ErrPaymentAmountExceeded = errors.New("payment: cancel amount exceeds remaining balance")
	ErrPaymentUnavailable    = errors.New("payment: backing store unavailable")
)

const (
	paymentIDPrefix = "pay_"

	defaultPaymentExpireAfter = 10 * time.Minute
)

// PaymentServiceDeps wires the collaborators of the payment service.
type PaymentServiceDeps struct {
	Payments   repositories.PaymentRepository
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork

	// Optional.
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)

	// ExpireAfter is how long a requested payment may stay unconfirmed before
	// the sweep marks it expired. Zero selects the default of ten minutes.
	ExpireAfter time.Duration
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	uow      repositories.UnitOfWork

	clock       func() time.Time
	nextID      func() string
	logger      func(ctx context.Context, event string, fields map[string]any)
	expireAfter time.Duration
}

// NewPaymentService validates dependencies and builds the payment service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service requires payment repository")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service requires order repository")
	}
	if deps.ExpireAfter < 0 {
		return nil, errors.New("payment service expire-after must not be negative")
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
	expireAfter := deps.ExpireAfter
	if expireAfter == 0 {
		expireAfter = defaultPaymentExpireAfter
	}

	return &paymentService{
		payments:    deps.Payments,
		orders:      deps.Orders,
		uow:         uow,
		clock:       func() time.Time { return clock().UTC() },
		nextID:      nextID,
		logger:      logger,
		expireAfter: expireAfter,
	}, nil
}

// Request opens a payment for the caller's order. The record starts in
// SUCCESS, meaning the request went through but the money is not yet
// confirmed. An order carries at most one payment.
func (s *paymentService) Request(ctx context.Context, cmd RequestPaymentCommand) (Payment, error) {
	if err := s.requireCustomer(cmd.Principal); err != nil {
		return Payment{}, err
	}
	method := strings.TrimSpace(cmd.Method)
	if method == "" {
		return Payment{}, fmt.Errorf("%w: payment method is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	if order.UserID != cmd.Principal.UserID {
		return Payment{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, cmd.OrderID)
	}

	if existing, err := s.payments.FindByOrderID(ctx, order.ID); err == nil {
		return Payment{}, fmt.Errorf("%w: payment %s already exists for order %s", ErrPaymentConflict, existing.ID, order.ID)
	} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrPaymentNotFound) {
		return Payment{}, mapped
	}

	now := s.clock()
	payment := domain.Payment{
		ID:            paymentIDPrefix + s.nextID(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		OrderName:     order.Name,
		Method:        method,
		TotalAmount:   order.TotalPrice,
		BalanceAmount: order.TotalPrice,
		Status:        domain.PaymentStatusSuccess,
		RequestedAt:   now,
		UpdatedAt:     now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return payment, nil
}

// Confirm finalises a requested payment, recording the gateway transaction key
// and the approval time.
func (s *paymentService) Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (Payment, error) {
	if err := s.requireCustomer(cmd.Principal); err != nil {
		return Payment{}, err
	}
	key := strings.TrimSpace(cmd.TransactionKey)
	if key == "" {
		return Payment{}, fmt.Errorf("%w: transaction key is required", ErrPaymentInvalidInput)
	}

	var confirmed Payment
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.loadOwnPayment(txCtx, cmd.PaymentID, cmd.Principal)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentStatusSuccess {
			return fmt.Errorf("%w: cannot confirm payment in status %s", ErrPaymentInvalidState, payment.Status)
		}

		now := s.clock()
		payment.Status = domain.PaymentStatusDone
		payment.TransactionKey = key
		payment.ApprovedAt = &now
		payment.UpdatedAt = now
		if err := s.payments.Update(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		confirmed = payment
		return nil
	})
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return confirmed, nil
}

// CancelAmount refunds part or all of a confirmed payment. A fully refunded
// payment moves to CANCELED, a partial refund to PARTIAL_CANCELED.
func (s *paymentService) CancelAmount(ctx context.Context, cmd CancelPaymentCommand) (Payment, error) {
	if err := s.requireCustomer(cmd.Principal); err != nil {
		return Payment{}, err
	}
	if cmd.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: cancel amount must be positive", ErrPaymentInvalidInput)
	}

	var cancelled Payment
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.loadOwnPayment(txCtx, cmd.PaymentID, cmd.Principal)
		if err != nil {
			return err
		}
		switch payment.Status {
		case domain.PaymentStatusDone, domain.PaymentStatusPartialCanceled:
		default:
			return fmt.Errorf("%w: cannot cancel payment in status %s", ErrPaymentInvalidState, payment.Status)
		}
		if cmd.Amount > payment.BalanceAmount {
			return fmt.Errorf("%w: amount %d, balance %d", ErrPaymentAmountExceeded, cmd.Amount, payment.BalanceAmount)
		}

		payment.BalanceAmount -= cmd.Amount
		if payment.BalanceAmount == 0 {
			payment.Status = domain.PaymentStatusCanceled
		} else {
			payment.Status = domain.PaymentStatusPartialCanceled
		}
		payment.UpdatedAt = s.clock()
		if err := s.payments.Update(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		cancelled = payment
		return nil
	})
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return cancelled, nil
}

// Abort voids a payment that was requested but never confirmed.
func (s *paymentService) Abort(ctx context.Context, paymentID string, principal Principal) (Payment, error) {
	if err := s.requireCustomer(principal); err != nil {
		return Payment{}, err
	}

	var aborted Payment
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.loadOwnPayment(txCtx, paymentID, principal)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentStatusSuccess {
			return fmt.Errorf("%w: cannot abort payment in status %s", ErrPaymentInvalidState, payment.Status)
		}

		payment.Status = domain.PaymentStatusAborted
		payment.UpdatedAt = s.clock()
		if err := s.payments.Update(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		aborted = payment
		return nil
	})
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return aborted, nil
}

// ExpireStale marks unconfirmed payments older than the expiry window as
// EXPIRED. Each payment is re-checked inside its own transaction so a
// confirmation racing the sweep wins. Returns the number expired.
func (s *paymentService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Add(-s.expireAfter)
	stale, err := s.payments.ListStale(ctx, cutoff)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	candidates, _ := partitionExpirable(stale, cutoff)

	expired := 0
	for _, candidate := range candidates {
		err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
			payment, err := s.payments.FindByID(txCtx, candidate.ID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if payment.Status != domain.PaymentStatusSuccess || payment.RequestedAt.After(cutoff) {
				return nil
			}
			payment.Status = domain.PaymentStatusExpired
			payment.UpdatedAt = now.UTC()
			return s.mapRepositoryError(s.payments.Update(txCtx, payment))
		})
		if err != nil {
			s.logger(ctx, "payment.expire.failed", map[string]any{
				"paymentId": candidate.ID,
				"error":     err.Error(),
			})
			continue
		}
		expired++
	}
	return expired, nil
}

// partitionExpirable splits payments into those eligible for expiry at the
// cutoff and those that are not. The repository query already filters, but the
// split keeps the decision testable without a backend.
func partitionExpirable(payments []domain.Payment, cutoff time.Time) (expirable, keep []domain.Payment) {
	for _, payment := range payments {
		if payment.Status == domain.PaymentStatusSuccess && !payment.RequestedAt.After(cutoff) {
			expirable = append(expirable, payment)
			continue
		}
		keep = append(keep, payment)
	}
	return expirable, keep
}

// loadOwnPayment fetches a payment and verifies the caller owns it. Foreign
// payments are reported as missing so payment IDs cannot be probed.
func (s *paymentService) loadOwnPayment(ctx context.Context, paymentID string, principal Principal) (Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	if payment.UserID != principal.UserID {
		return Payment{}, fmt.Errorf("%w: payment %s", ErrPaymentNotFound, paymentID)
	}
	return payment, nil
}

func (s *paymentService) requireCustomer(principal Principal) error {
	if principal.UserID == "" {
		return fmt.Errorf("%w: missing principal", ErrPaymentForbidden)
	}
	if principal.Role != domain.RoleCustomer {
		return fmt.Errorf("%w: role %s", ErrPaymentForbidden, principal.Role)
	}
	return nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
	}
	return err
}
