package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// PostgresActivityRepository implements ActivityRepository using PostgreSQL
type PostgresActivityRepository struct {
	db DBTX
}

// NewPostgresActivityRepository creates a new PostgresActivityRepository
func NewPostgresActivityRepository(db DBTX) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

// GetByID retrieves an activity by its ID
func (r *PostgresActivityRepository) GetByID(ctx context.Context, id string) (*domain.Activity, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.activity.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("activity_id", id))

	query := `
		SELECT id, title, type, status, unit_price_cents, currency, max_capacity, created_at, updated_at
		FROM activities
		WHERE id = $1
	`

	activity := &domain.Activity{}
	var activityType, status string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&activity.ID,
		&activity.Title,
		&activityType,
		&status,
		&activity.UnitPriceCents,
		&activity.Currency,
		&activity.MaxCapacity,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrActivityNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	activity.Type = domain.ActivityType(activityType)
	activity.Status = domain.ActivityStatus(status)

	span.SetStatus(codes.Ok, "")
	return activity, nil
}

var _ ActivityRepository = (*PostgresActivityRepository)(nil)
