package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	db DBTX
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db DBTX) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

const bookingColumns = `
	id, activity_id, session_ids, customer_name, customer_email, customer_phone,
	number_of_people, status, payment_status,
	original_price_cents, charged_cents, currency,
	gift_code, gift_amount_cents, payment_session_id, notes,
	expires_at, confirmed_at, cancelled_at, created_at, updated_at
`

// Create creates a new booking record
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("activity_id", booking.ActivityID),
		attribute.Int("people", booking.NumberOfPeople),
	)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.ActivityID,
		booking.SessionIDs,
		booking.Customer.Name,
		booking.Customer.Email,
		nullString(booking.Customer.Phone),
		booking.NumberOfPeople,
		booking.Status.String(),
		string(booking.PaymentStatus),
		booking.OriginalPriceCents,
		booking.ChargedCents,
		booking.Currency,
		nullString(booking.GiftCode),
		booking.GiftAmountCents,
		nullString(booking.PaymentSessionID),
		nullString(booking.Notes),
		booking.ExpiresAt,
		booking.ConfirmedAt,
		booking.CancelledAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBookingRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByPaymentSessionID retrieves a booking by its payment session identifier
func (r *PostgresBookingRepository) GetByPaymentSessionID(ctx context.Context, paymentSessionID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_payment_session")
	defer span.End()

	span.SetAttributes(attribute.String("payment_session_id", paymentSessionID))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_session_id = $1`

	booking, err := scanBookingRow(r.db.QueryRow(ctx, query, paymentSessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking by payment session: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Update updates an existing booking
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", booking.ID))

	query := `
		UPDATE bookings SET
			number_of_people = $2,
			status = $3,
			payment_status = $4,
			charged_cents = $5,
			gift_code = $6,
			gift_amount_cents = $7,
			payment_session_id = $8,
			notes = $9,
			expires_at = $10,
			confirmed_at = $11,
			cancelled_at = $12,
			updated_at = $13
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.NumberOfPeople,
		booking.Status.String(),
		string(booking.PaymentStatus),
		booking.ChargedCents,
		nullString(booking.GiftCode),
		booking.GiftAmountCents,
		nullString(booking.PaymentSessionID),
		nullString(booking.Notes),
		booking.ExpiresAt,
		booking.ConfirmedAt,
		booking.CancelledAt,
		time.Now(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete deletes a booking by its ID
func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	result, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListExpired retrieves pending bookings whose expiration passed before the
// given instant, oldest first.
func (r *PostgresBookingRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_expired")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending'
			AND expires_at IS NOT NULL
			AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// ListByEmail retrieves a customer's bookings, newest first
func (r *PostgresBookingRepository) ListByEmail(ctx context.Context, email string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_email")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE customer_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, email, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list bookings by email: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// scanBookingRow scans a row into a Booking struct
func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status           string
		paymentStatus    string
		customerPhone    *string
		giftCode         *string
		paymentSessionID *string
		notes            *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.ActivityID,
		&booking.SessionIDs,
		&booking.Customer.Name,
		&booking.Customer.Email,
		&customerPhone,
		&booking.NumberOfPeople,
		&status,
		&paymentStatus,
		&booking.OriginalPriceCents,
		&booking.ChargedCents,
		&booking.Currency,
		&giftCode,
		&booking.GiftAmountCents,
		&paymentSessionID,
		&notes,
		&booking.ExpiresAt,
		&booking.ConfirmedAt,
		&booking.CancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	booking.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if customerPhone != nil {
		booking.Customer.Phone = *customerPhone
	}
	if giftCode != nil {
		booking.GiftCode = *giftCode
	}
	if paymentSessionID != nil {
		booking.PaymentSessionID = *paymentSessionID
	}
	if notes != nil {
		booking.Notes = *notes
	}

	return booking, nil
}

// nullString converts an empty string to a nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)
