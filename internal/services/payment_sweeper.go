package services

import (
	"context"
	"errors"
	"time"
)

const defaultPaymentSweepInterval = 60 * time.Second

// StalePaymentExpirer is the slice of PaymentService the sweeper needs.
type StalePaymentExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// PaymentSweeperDeps wires the collaborators of the payment expiration sweeper.
type PaymentSweeperDeps struct {
	Payments StalePaymentExpirer

	// Optional. Interval zero selects the default of sixty seconds.
	Interval time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// PaymentSweeper periodically expires payments that were requested but never
// confirmed. A failed sweep is logged and the loop keeps running.
type PaymentSweeper struct {
	payments StalePaymentExpirer
	interval time.Duration
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentSweeper validates dependencies and builds the sweeper.
func NewPaymentSweeper(deps PaymentSweeperDeps) (*PaymentSweeper, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment sweeper requires payment expirer")
	}
	if deps.Interval < 0 {
		return nil, errors.New("payment sweeper interval must not be negative")
	}

	interval := deps.Interval
	if interval == 0 {
		interval = defaultPaymentSweepInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PaymentSweeper{
		payments: deps.Payments,
		interval: interval,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Run blocks, sweeping on every tick until the context is cancelled.
func (s *PaymentSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single expiration pass.
func (s *PaymentSweeper) Sweep(ctx context.Context) {
	now := s.clock()
	expired, err := s.payments.ExpireStale(ctx, now)
	if err != nil {
		s.logger(ctx, "payment.sweep.failed", map[string]any{"error": err.Error()})
		return
	}
	if expired > 0 {
		s.logger(ctx, "payment.sweep.expired", map[string]any{"count": expired})
	}
}
