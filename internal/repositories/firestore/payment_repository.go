package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mealbridge/api/internal/domain"
	pfirestore "github.com/mealbridge/api/internal/platform/firestore"
)

const paymentsCollection = "payments"

type paymentDocument struct {
	OrderID        string     `firestore:"orderId"`
	UserID         string     `firestore:"userId"`
	OrderName      string     `firestore:"orderName"`
	Method         string     `firestore:"method"`
	TotalAmount    int64      `firestore:"totalAmount"`
	BalanceAmount  int64      `firestore:"balanceAmount"`
	Status         string     `firestore:"status"`
	TransactionKey string     `firestore:"transactionKey"`
	RequestedAt    time.Time  `firestore:"requestedAt"`
	ApprovedAt     *time.Time `firestore:"approvedAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// PaymentRepository persists payment records in Firestore.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		base: pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil),
	}, nil
}

// Insert writes a new payment document, failing on duplicate IDs.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.base.Create(ctx, payment.ID, encodePayment(payment))
}

// Update replaces the payment document.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	return r.base.Set(ctx, payment.ID, encodePayment(payment))
}

// FindByID loads a payment record.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePayment(doc.ID, doc.Data), nil
}

// FindByOrderID loads the payment attached to the given order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NewNotFound("payments.findByOrder", fmt.Errorf("no payment for order %s", orderID))
	}
	return decodePayment(docs[0].ID, docs[0].Data), nil
}

// ListStale returns unconfirmed payments requested before the cutoff.
func (r *PaymentRepository) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Payment, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.PaymentStatusSuccess)).
			Where("requestedAt", "<", cutoff.UTC()).
			OrderBy("requestedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, decodePayment(doc.ID, doc.Data))
	}
	return payments, nil
}

func encodePayment(payment domain.Payment) paymentDocument {
	var approvedAt *time.Time
	if payment.ApprovedAt != nil {
		utc := payment.ApprovedAt.UTC()
		approvedAt = &utc
	}
	return paymentDocument{
		OrderID:        payment.OrderID,
		UserID:         payment.UserID,
		OrderName:      payment.OrderName,
		Method:         payment.Method,
		TotalAmount:    payment.TotalAmount,
		BalanceAmount:  payment.BalanceAmount,
		Status:         string(payment.Status),
		TransactionKey: payment.TransactionKey,
		RequestedAt:    payment.RequestedAt.UTC(),
		ApprovedAt:     approvedAt,
		UpdatedAt:      payment.UpdatedAt.UTC(),
	}
}

func decodePayment(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:             id,
		OrderID:        doc.OrderID,
		UserID:         doc.UserID,
		OrderName:      doc.OrderName,
		Method:         doc.Method,
		TotalAmount:    doc.TotalAmount,
		BalanceAmount:  doc.BalanceAmount,
		Status:         domain.PaymentStatus(doc.Status),
		TransactionKey: doc.TransactionKey,
		RequestedAt:    doc.RequestedAt,
		ApprovedAt:     doc.ApprovedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
