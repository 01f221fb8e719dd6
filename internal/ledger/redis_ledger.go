package ledger

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/logger"
	pkgredis "github.com/daybook-io/daybook/pkg/redis"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

//go:embed scripts/reserve_spots.lua
var reserveSpotsScript string

//go:embed scripts/release_spots.lua
var releaseSpotsScript string

const (
	scriptReserveSpots = "reserve_spots"
	scriptReleaseSpots = "release_spots"
)

// RedisLedger implements Ledger with multi-key Lua scripts. A single script
// invocation checks and decrements every key, so the all-or-nothing property
// holds without any manual rollback of partial decrements.
//
// Availability keys must be warmed from the database before this backend
// serves a session; a cold key reserves as not-found rather than as zero.
type RedisLedger struct {
	client *pkgredis.Client
	log    *logger.Logger
}

// NewRedisLedger creates a Redis-backed ledger
func NewRedisLedger(client *pkgredis.Client, log *logger.Logger) *RedisLedger {
	if log == nil {
		log = logger.Get()
	}
	return &RedisLedger{client: client, log: log}
}

// LoadScripts preloads the Lua scripts into the Redis script cache
func (l *RedisLedger) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptReserveSpots: reserveSpotsScript,
		scriptReleaseSpots: releaseSpotsScript,
	}
	for name, script := range scripts {
		if _, err := l.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

func availabilityKey(sessionID string) string {
	return fmt.Sprintf("session:spots:%s", sessionID)
}

// Reserve decrements every session's availability by amount, or none
func (l *RedisLedger) Reserve(ctx context.Context, resourceIDs []string, amount int) error {
	ctx, span := telemetry.StartSpan(ctx, "ledger.redis.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int("resources", len(resourceIDs)),
		attribute.Int("amount", amount),
	)

	if amount < 1 {
		span.SetStatus(codes.Error, "invalid amount")
		return domain.ErrInvalidPeopleCount
	}

	keys := make([]string, len(resourceIDs))
	for i, id := range resourceIDs {
		keys[i] = availabilityKey(id)
	}

	result := l.client.EvalWithFallback(ctx, scriptReserveSpots, reserveSpotsScript, keys, amount)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return fmt.Errorf("failed to execute reserve script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 3 {
		span.SetStatus(codes.Error, "unexpected result length")
		return fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		remaining, _ := toInt64(values[1])
		span.SetAttributes(attribute.Int64("remaining_min", remaining))
		span.SetStatus(codes.Ok, "")
		return nil
	}

	errorCode, _ := values[1].(string)
	span.SetAttributes(attribute.String("error_code", errorCode))
	span.SetStatus(codes.Error, errorCode)

	switch errorCode {
	case "NOT_FOUND":
		return domain.ErrSessionNotFound
	case "INSUFFICIENT":
		return domain.ErrInsufficientCapacity
	default:
		return fmt.Errorf("reserve script failed: %s", errorCode)
	}
}

// Release re-increments every session's availability; errors are logged
func (l *RedisLedger) Release(ctx context.Context, resourceIDs []string, amount int) {
	ctx, span := telemetry.StartSpan(ctx, "ledger.redis.release")
	defer span.End()

	span.SetAttributes(
		attribute.Int("resources", len(resourceIDs)),
		attribute.Int("amount", amount),
	)

	keys := make([]string, len(resourceIDs))
	for i, id := range resourceIDs {
		keys[i] = availabilityKey(id)
	}

	result := l.client.EvalWithFallback(ctx, scriptReleaseSpots, releaseSpotsScript, keys, amount)
	if result.Err() != nil {
		span.RecordError(result.Err())
		l.log.Error("failed to release spots",
			zap.Strings("session_ids", resourceIDs),
			zap.Int("amount", amount),
			zap.Error(result.Err()),
		)
		return
	}

	span.SetStatus(codes.Ok, "")
}

// SetAvailability warms the availability key for a session from the database
func (l *RedisLedger) SetAvailability(ctx context.Context, sessionID string, spots int) error {
	return l.client.Set(ctx, availabilityKey(sessionID), spots, 0).Err()
}

// GetAvailability reads the current availability for a session; a missing
// key reports found=false.
func (l *RedisLedger) GetAvailability(ctx context.Context, sessionID string) (int, bool, error) {
	value, err := l.client.Get(ctx, availabilityKey(sessionID)).Result()
	if err != nil {
		if err.Error() == "redis: nil" {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get availability: %w", err)
	}
	spots, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse availability: %w", err)
	}
	return spots, true, nil
}

// toInt64 converts a Lua script result element to int64
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

var _ Ledger = (*RedisLedger)(nil)
