package ledger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/logger"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// BalanceStore is the minimal surface the verify-rollback strategy needs
// from a persistence layer: read a balance and apply an unconditional delta
// that reports the resulting value.
type BalanceStore interface {
	GetBalance(ctx context.Context, id string) (value int, found bool, err error)
	AdjustBalance(ctx context.Context, id string, delta int) (newValue int, err error)
}

// FallbackLedger implements Ledger for stores without conditional writes:
// read, decrement, then verify the post-decrement value. A negative result
// means a concurrent writer won the race between read and decrement; the
// exact amount is rolled back and the caller sees a conflict it may retry.
//
// The window between decrement and verify makes this strictly weaker than
// the conditional-update backends; it exists only for stores that cannot do
// better.
type FallbackLedger struct {
	store BalanceStore
	log   *logger.Logger
}

// NewFallbackLedger creates a verify-rollback ledger over a balance store
func NewFallbackLedger(store BalanceStore, log *logger.Logger) *FallbackLedger {
	if log == nil {
		log = logger.Get()
	}
	return &FallbackLedger{store: store, log: log}
}

// Reserve decrements every resource by amount, rolling back on a detected
// race or on any failure part way through the set.
func (l *FallbackLedger) Reserve(ctx context.Context, resourceIDs []string, amount int) error {
	ctx, span := telemetry.StartSpan(ctx, "ledger.fallback.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int("resources", len(resourceIDs)),
		attribute.Int("amount", amount),
	)

	if amount < 1 {
		span.SetStatus(codes.Error, "invalid amount")
		return domain.ErrInvalidPeopleCount
	}

	// Fail fast before mutating anything. A missing balance is zero
	// capacity, never infinite.
	for _, id := range resourceIDs {
		value, found, err := l.store.GetBalance(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to read balance %s: %w", id, err)
		}
		if !found {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrSessionNotFound
		}
		if value < amount {
			span.SetStatus(codes.Error, "insufficient")
			return domain.ErrInsufficientCapacity
		}
	}

	var adjusted []string
	raced := false
	for _, id := range resourceIDs {
		newValue, err := l.store.AdjustBalance(ctx, id, -amount)
		if err != nil {
			l.Release(ctx, adjusted, amount)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to decrement %s: %w", id, err)
		}
		adjusted = append(adjusted, id)
		// Verify step: a negative value means a concurrent reserve got
		// between our read and our decrement.
		if newValue < 0 {
			raced = true
			break
		}
	}

	if raced {
		l.Release(ctx, adjusted, amount)
		span.SetStatus(codes.Error, "conflict")
		return domain.ErrConcurrentUpdate
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Release re-increments every resource by amount; errors are logged
func (l *FallbackLedger) Release(ctx context.Context, resourceIDs []string, amount int) {
	ctx, span := telemetry.StartSpan(ctx, "ledger.fallback.release")
	defer span.End()

	span.SetAttributes(
		attribute.Int("resources", len(resourceIDs)),
		attribute.Int("amount", amount),
	)

	for _, id := range resourceIDs {
		if _, err := l.store.AdjustBalance(ctx, id, amount); err != nil {
			span.RecordError(err)
			l.log.Error("failed to release balance",
				zap.String("resource_id", id),
				zap.Int("amount", amount),
				zap.Error(err),
			)
		}
	}

	span.SetStatus(codes.Ok, "")
}

var _ Ledger = (*FallbackLedger)(nil)
