package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// PostgresCodeRepository implements CodeRepository using PostgreSQL. The
// redemption audit trail lives in a jsonb column and is written through
// Update; the numeric balance and usage columns have dedicated conditional
// statements so reservations stay atomic under concurrency.
type PostgresCodeRepository struct {
	db DBTX
}

// NewPostgresCodeRepository creates a new PostgresCodeRepository
func NewPostgresCodeRepository(db DBTX) *PostgresCodeRepository {
	return &PostgresCodeRepository{db: db}
}

const codeColumns = `
	id, code, type, status,
	initial_value_cents, current_balance_cents, currency,
	discount_type, discount_value, max_uses, current_uses,
	redemptions, expires_at, created_at, updated_at
`

// Create creates a new code record
func (r *PostgresCodeRepository) Create(ctx context.Context, code *domain.Code) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", code.Code),
		attribute.String("type", string(code.Type)),
	)

	redemptions, err := json.Marshal(code.Redemptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal redemptions: %w", err)
	}

	query := `
		INSERT INTO codes (` + codeColumns + `)
		VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15
		)
	`

	_, err = r.db.Exec(ctx, query,
		code.ID,
		code.Code,
		string(code.Type),
		string(code.Status),
		code.InitialValueCents,
		code.CurrentBalanceCents,
		nullString(code.Currency),
		nullString(string(code.DiscountType)),
		code.DiscountValue,
		code.MaxUses,
		code.CurrentUses,
		redemptions,
		code.ExpiresAt,
		code.CreatedAt,
		code.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create code: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByCode retrieves a code by its redeemable string
func (r *PostgresCodeRepository) GetByCode(ctx context.Context, codeStr string) (*domain.Code, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.get_by_code")
	defer span.End()

	query := `SELECT ` + codeColumns + ` FROM codes WHERE code = $1`

	code := &domain.Code{}
	var (
		codeType     string
		status       string
		currency     *string
		discountType *string
		redemptions  []byte
	)

	err := r.db.QueryRow(ctx, query, codeStr).Scan(
		&code.ID,
		&code.Code,
		&codeType,
		&status,
		&code.InitialValueCents,
		&code.CurrentBalanceCents,
		&currency,
		&discountType,
		&code.DiscountValue,
		&code.MaxUses,
		&code.CurrentUses,
		&redemptions,
		&code.ExpiresAt,
		&code.CreatedAt,
		&code.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrCodeNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get code: %w", err)
	}

	code.Type = domain.CodeType(codeType)
	code.Status = domain.CodeStatus(status)
	if currency != nil {
		code.Currency = *currency
	}
	if discountType != nil {
		code.DiscountType = domain.DiscountType(*discountType)
	}
	if len(redemptions) > 0 {
		if err := json.Unmarshal(redemptions, &code.Redemptions); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to unmarshal redemptions: %w", err)
		}
	}

	span.SetAttributes(attribute.String("type", codeType), attribute.String("status", status))
	span.SetStatus(codes.Ok, "")
	return code, nil
}

// Update persists mutable code state: status, counters and the audit trail
func (r *PostgresCodeRepository) Update(ctx context.Context, code *domain.Code) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", code.Code),
		attribute.String("status", string(code.Status)),
	)

	redemptions, err := json.Marshal(code.Redemptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal redemptions: %w", err)
	}

	query := `
		UPDATE codes SET
			status = $2,
			current_balance_cents = $3,
			current_uses = $4,
			redemptions = $5,
			updated_at = $6
		WHERE code = $1
	`

	result, err := r.db.Exec(ctx, query,
		code.Code,
		string(code.Status),
		code.CurrentBalanceCents,
		code.CurrentUses,
		redemptions,
		time.Now(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update code: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrCodeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ReserveBalance atomically decrements a gift balance iff it covers the
// amount. A zero row count means insufficient balance or missing code.
func (r *PostgresCodeRepository) ReserveBalance(ctx context.Context, codeStr string, amountCents int64) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.reserve_balance")
	defer span.End()

	span.SetAttributes(attribute.Int64("amount_cents", amountCents))

	query := `
		UPDATE codes SET
			current_balance_cents = current_balance_cents - $2,
			updated_at = $3
		WHERE code = $1
			AND type = 'gift'
			AND current_balance_cents >= $2
	`

	result, err := r.db.Exec(ctx, query, codeStr, amountCents, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to reserve code balance: %w", err)
	}

	reserved := result.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("reserved", reserved))
	span.SetStatus(codes.Ok, "")
	return reserved, nil
}

// ReleaseBalance re-increments a gift balance, clamped at the initial value.
// Only unapplied reservations are released this way; applied redemptions are
// non-refundable.
func (r *PostgresCodeRepository) ReleaseBalance(ctx context.Context, codeStr string, amountCents int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.release_balance")
	defer span.End()

	span.SetAttributes(attribute.Int64("amount_cents", amountCents))

	query := `
		UPDATE codes SET
			current_balance_cents = LEAST(current_balance_cents + $2, initial_value_cents),
			updated_at = $3
		WHERE code = $1 AND type = 'gift'
	`

	result, err := r.db.Exec(ctx, query, codeStr, amountCents, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release code balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrCodeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ReserveUse atomically increments a promo usage count iff under max_uses;
// NULL max_uses never blocks.
func (r *PostgresCodeRepository) ReserveUse(ctx context.Context, codeStr string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.reserve_use")
	defer span.End()

	query := `
		UPDATE codes SET
			current_uses = current_uses + 1,
			updated_at = $2
		WHERE code = $1
			AND type = 'promo'
			AND (max_uses IS NULL OR current_uses < max_uses)
	`

	result, err := r.db.Exec(ctx, query, codeStr, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to reserve code use: %w", err)
	}

	reserved := result.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("reserved", reserved))
	span.SetStatus(codes.Ok, "")
	return reserved, nil
}

// ReleaseUse decrements a promo usage count, floored at zero
func (r *PostgresCodeRepository) ReleaseUse(ctx context.Context, codeStr string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.code.release_use")
	defer span.End()

	query := `
		UPDATE codes SET
			current_uses = GREATEST(current_uses - 1, 0),
			updated_at = $2
		WHERE code = $1 AND type = 'promo'
	`

	result, err := r.db.Exec(ctx, query, codeStr, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release code use: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrCodeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

var _ CodeRepository = (*PostgresCodeRepository)(nil)
