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

// PostgresSessionRepository implements SessionRepository using PostgreSQL.
// available_spots is nullable: NULL means nothing has been reserved yet and
// the parent activity's max_capacity is still fully open, so every capacity
// statement resolves it with COALESCE(available_spots, max_capacity, 0).
type PostgresSessionRepository struct {
	db DBTX
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository
func NewPostgresSessionRepository(db DBTX) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

const sessionColumns = `
	s.id, s.activity_id, s.starts_at, s.ends_at, s.status,
	s.available_spots, a.max_capacity, s.created_at, s.updated_at
`

// GetByID retrieves a session by its ID
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", id))

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions s
		JOIN activities a ON s.activity_id = a.id
		WHERE s.id = $1
	`

	session, err := scanSessionRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return session, nil
}

// GetByIDs retrieves multiple sessions by ID. The result may be shorter than
// the input when some IDs do not exist; callers compare lengths.
func (r *PostgresSessionRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.get_by_ids")
	defer span.End()

	span.SetAttributes(attribute.Int("requested", len(ids)))

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions s
		JOIN activities a ON s.activity_id = a.id
		WHERE s.id = ANY($1)
		ORDER BY s.starts_at
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := collectSessions(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(sessions)))
	span.SetStatus(codes.Ok, "")
	return sessions, nil
}

// ListScheduledByActivity retrieves all scheduled sessions of an activity in
// start order. Used to resolve the session set of a course enrollment.
func (r *PostgresSessionRepository) ListScheduledByActivity(ctx context.Context, activityID string) ([]*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.list_scheduled")
	defer span.End()

	span.SetAttributes(attribute.String("activity_id", activityID))

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions s
		JOIN activities a ON s.activity_id = a.id
		WHERE s.activity_id = $1 AND s.status = 'scheduled'
		ORDER BY s.starts_at
	`

	rows, err := r.db.Query(ctx, query, activityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := collectSessions(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(sessions)))
	span.SetStatus(codes.Ok, "")
	return sessions, nil
}

// ReserveSpots atomically decrements availability iff at least amount spots
// remain. Success is reported by the row count of the conditional update; a
// zero count means either insufficient capacity or a missing session, which
// the caller disambiguates.
func (r *PostgresSessionRepository) ReserveSpots(ctx context.Context, sessionID string, amount int) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.reserve_spots")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("amount", amount),
	)

	query := `
		UPDATE sessions s SET
			available_spots = COALESCE(s.available_spots, a.max_capacity, 0) - $2,
			updated_at = $3
		FROM activities a
		WHERE s.activity_id = a.id
			AND s.id = $1
			AND COALESCE(s.available_spots, a.max_capacity, 0) >= $2
	`

	result, err := r.db.Exec(ctx, query, sessionID, amount, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to reserve spots: %w", err)
	}

	reserved := result.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("reserved", reserved))
	span.SetStatus(codes.Ok, "")
	return reserved, nil
}

// ReleaseSpots increments availability, clamped at the activity's maximum so
// repeated compensations cannot inflate capacity.
func (r *PostgresSessionRepository) ReleaseSpots(ctx context.Context, sessionID string, amount int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.release_spots")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("amount", amount),
	)

	query := `
		UPDATE sessions s SET
			available_spots = LEAST(COALESCE(s.available_spots, a.max_capacity, 0) + $2, a.max_capacity),
			updated_at = $3
		FROM activities a
		WHERE s.activity_id = a.id AND s.id = $1
	`

	result, err := r.db.Exec(ctx, query, sessionID, amount, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release spots: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// AdjustSpots applies an unconditional delta and returns the resulting
// value, which may be negative. Only the verify-rollback ledger strategy
// uses this; the conditional ReserveSpots path is preferred.
func (r *PostgresSessionRepository) AdjustSpots(ctx context.Context, sessionID string, delta int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.adjust_spots")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("delta", delta),
	)

	query := `
		UPDATE sessions s SET
			available_spots = COALESCE(s.available_spots, a.max_capacity, 0) + $2,
			updated_at = $3
		FROM activities a
		WHERE s.activity_id = a.id AND s.id = $1
		RETURNING s.available_spots
	`

	var value int
	err := r.db.QueryRow(ctx, query, sessionID, delta, time.Now()).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return 0, domain.ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to adjust spots: %w", err)
	}

	span.SetAttributes(attribute.Int("value", value))
	span.SetStatus(codes.Ok, "")
	return value, nil
}

// scanSessionRow scans a single session row
func scanSessionRow(row pgx.Row) (*domain.Session, error) {
	session := &domain.Session{}
	var status string

	err := row.Scan(
		&session.ID,
		&session.ActivityID,
		&session.StartsAt,
		&session.EndsAt,
		&status,
		&session.AvailableSpots,
		&session.MaxCapacity,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatus(status)
	return session, nil
}

// collectSessions scans all rows into sessions
func collectSessions(rows pgx.Rows) ([]*domain.Session, error) {
	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

var _ SessionRepository = (*PostgresSessionRepository)(nil)
