package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/daybook-io/daybook/internal/domain"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// repository can run against the pool or inside a transaction unchanged.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ActivityRepository provides access to bookable activities
type ActivityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Activity, error)
}

// SessionRepository provides access to scheduled sessions and the atomic
// capacity primitives the reservation ledger is built on.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Session, error)
	ListScheduledByActivity(ctx context.Context, activityID string) ([]*domain.Session, error)

	// ReserveSpots atomically decrements availability iff enough spots
	// remain; reports whether the conditional update took effect.
	ReserveSpots(ctx context.Context, sessionID string, amount int) (bool, error)
	// ReleaseSpots increments availability, clamped at max capacity
	ReleaseSpots(ctx context.Context, sessionID string, amount int) error
	// AdjustSpots applies an unconditional delta and returns the new
	// value. Used by the verify-rollback ledger strategy only.
	AdjustSpots(ctx context.Context, sessionID string, delta int) (int, error)
}

// BookingRepository provides access to bookings
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByPaymentSessionID(ctx context.Context, paymentSessionID string) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	Delete(ctx context.Context, id string) error
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error)
	ListByEmail(ctx context.Context, email string, limit, offset int) ([]*domain.Booking, error)
}

// CodeRepository provides access to gift certificates and promo codes plus
// the atomic balance and usage-count primitives.
type CodeRepository interface {
	Create(ctx context.Context, code *domain.Code) error
	GetByCode(ctx context.Context, code string) (*domain.Code, error)
	Update(ctx context.Context, code *domain.Code) error

	// ReserveBalance atomically decrements a gift balance iff sufficient
	ReserveBalance(ctx context.Context, code string, amountCents int64) (bool, error)
	// ReleaseBalance re-increments a gift balance, clamped at initial value
	ReleaseBalance(ctx context.Context, code string, amountCents int64) error
	// ReserveUse atomically increments a promo usage count iff under the
	// limit; a nil limit never blocks.
	ReserveUse(ctx context.Context, code string) (bool, error)
	// ReleaseUse decrements a promo usage count, floored at zero
	ReleaseUse(ctx context.Context, code string) error
}

// Store bundles all repositories over one connection source and exposes
// transactional composition. WithTx runs fn against repositories bound to a
// single transaction; fn returning an error rolls everything back.
type Store interface {
	Activities() ActivityRepository
	Sessions() SessionRepository
	Bookings() BookingRepository
	Codes() CodeRepository
	WithTx(ctx context.Context, fn func(Store) error) error
}
