package ledger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/pkg/logger"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// PostgresLedger implements Ledger with conditional UPDATE statements: a
// decrement succeeds iff the row still had enough spots at execution time,
// so no application-level lock is needed. When one resource in the set
// rejects the decrement, the ones that already accepted are released before
// the error is returned, keeping the set all-or-nothing.
type PostgresLedger struct {
	sessions repository.SessionRepository
	log      *logger.Logger
}

// NewPostgresLedger creates a ledger over the session repository
func NewPostgresLedger(sessions repository.SessionRepository, log *logger.Logger) *PostgresLedger {
	if log == nil {
		log = logger.Get()
	}
	return &PostgresLedger{sessions: sessions, log: log}
}

// Reserve decrements every resource by amount, or none of them
func (l *PostgresLedger) Reserve(ctx context.Context, resourceIDs []string, amount int) error {
	ctx, span := telemetry.StartSpan(ctx, "ledger.postgres.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int("resources", len(resourceIDs)),
		attribute.Int("amount", amount),
	)

	if amount < 1 {
		span.SetStatus(codes.Error, "invalid amount")
		return domain.ErrInvalidPeopleCount
	}

	// Existence check before any mutation: a missing resource must not
	// leave partial decrements behind.
	found, err := l.sessions.GetByIDs(ctx, resourceIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to resolve resources: %w", err)
	}
	if len(found) != len(resourceIDs) {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSessionNotFound
	}

	var reserved []string
	for _, id := range resourceIDs {
		ok, err := l.sessions.ReserveSpots(ctx, id, amount)
		if err != nil {
			l.Release(ctx, reserved, amount)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to reserve %s: %w", id, err)
		}
		if !ok {
			l.Release(ctx, reserved, amount)
			span.SetStatus(codes.Error, "insufficient")
			return domain.ErrInsufficientCapacity
		}
		reserved = append(reserved, id)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Release re-increments every resource by amount. Errors are logged and
// swallowed; availability drift is recoverable, a failed outer operation
// caused by cleanup is not.
func (l *PostgresLedger) Release(ctx context.Context, resourceIDs []string, amount int) {
	ctx, span := telemetry.StartSpan(ctx, "ledger.postgres.release")
	defer span.End()

	span.SetAttributes(
		attribute.Int("resources", len(resourceIDs)),
		attribute.Int("amount", amount),
	)

	for _, id := range resourceIDs {
		if err := l.sessions.ReleaseSpots(ctx, id, amount); err != nil {
			span.RecordError(err)
			l.log.Error("failed to release spots",
				zap.String("session_id", id),
				zap.Int("amount", amount),
				zap.Error(err),
			)
		}
	}

	span.SetStatus(codes.Ok, "")
}

var _ Ledger = (*PostgresLedger)(nil)
