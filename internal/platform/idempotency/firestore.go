package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/mealbridge/api/internal/platform/firestore"
)

const idempotencyCollection = "idempotencyKeys"

type idempotencyDocument struct {
	Key            string    `firestore:"key"`
	Fingerprint    string    `firestore:"fingerprint"`
	Status         string    `firestore:"status"`
	ResponseStatus int       `firestore:"responseStatus"`
	ResponseBody   []byte    `firestore:"responseBody"`
	ContentType    string    `firestore:"contentType"`
	CreatedAt      time.Time `firestore:"createdAt"`
	ExpiresAt      time.Time `firestore:"expiresAt"`
}

func (d idempotencyDocument) toRecord() Record {
	return Record{
		Key:            d.Key,
		Fingerprint:    d.Fingerprint,
		Status:         Status(d.Status),
		ResponseStatus: d.ResponseStatus,
		ResponseBody:   d.ResponseBody,
		ContentType:    d.ContentType,
		CreatedAt:      d.CreatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}

// FirestoreStore implements Store on Firestore so replay protection survives
// restarts and is shared between instances.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency store requires firestore provider")
	}
	return &FirestoreStore{provider: provider, collection: idempotencyCollection}, nil
}

// Reserve implements Store. The read-check-write runs inside a Firestore
// transaction so two concurrent requests with the same key cannot both win.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return Reservation{}, err
	}
	ref := client.Collection(s.collection).Doc(recordID(key))

	var result Reservation
	err = client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		reserve := func() error {
			doc := idempotencyDocument{
				Key:         key,
				Fingerprint: fingerprint,
				Status:      string(StatusPending),
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			result = Reservation{State: ReservationNew, Record: doc.toRecord()}
			return nil
		}

		if err != nil {
			return reserve()
		}

		var doc idempotencyDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !now.Before(doc.ExpiresAt) {
			return reserve()
		}
		if doc.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if doc.Status == string(StatusCompleted) {
			result = Reservation{State: ReservationCompleted, Record: doc.toRecord()}
			return nil
		}
		result = Reservation{State: ReservationInFlight, Record: doc.toRecord()}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, respStatus int, contentType string, body []byte, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(s.collection).Doc(recordID(key))

	return client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		doc := idempotencyDocument{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		doc.Status = string(StatusCompleted)
		doc.ResponseStatus = respStatus
		doc.ContentType = contentType
		doc.ResponseBody = append([]byte(nil), body...)
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	})
}

// Release implements Store. Missing records are fine, the key is free either way.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(s.collection).Doc(recordID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
