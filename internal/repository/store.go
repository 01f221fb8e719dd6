package repository

import (
	"context"
	"fmt"

	"github.com/daybook-io/daybook/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
)

// SQLStore implements Store over a DBTX. The same type serves both the
// pool-backed store and the transaction-bound stores handed to WithTx
// callbacks, since every repository only needs the DBTX surface.
type SQLStore struct {
	db         DBTX
	activities *PostgresActivityRepository
	sessions   *PostgresSessionRepository
	bookings   *PostgresBookingRepository
	codes      *PostgresCodeRepository
}

// NewSQLStore creates a store over the given connection source
func NewSQLStore(db DBTX) *SQLStore {
	return &SQLStore{
		db:         db,
		activities: NewPostgresActivityRepository(db),
		sessions:   NewPostgresSessionRepository(db),
		bookings:   NewPostgresBookingRepository(db),
		codes:      NewPostgresCodeRepository(db),
	}
}

// Activities returns the activity repository
func (s *SQLStore) Activities() ActivityRepository { return s.activities }

// Sessions returns the session repository
func (s *SQLStore) Sessions() SessionRepository { return s.sessions }

// Bookings returns the booking repository
func (s *SQLStore) Bookings() BookingRepository { return s.bookings }

// Codes returns the code repository
func (s *SQLStore) Codes() CodeRepository { return s.codes }

// WithTx runs fn inside a single database transaction. All repository calls
// made through the store passed to fn share that transaction; an error from
// fn rolls back every write.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.with_tx")
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(NewSQLStore(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			span.RecordError(rbErr)
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

var _ Store = (*SQLStore)(nil)
