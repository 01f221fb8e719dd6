package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/booking"
	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/internal/notification"
	"github.com/daybook-io/daybook/internal/payment"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/pkg/logger"
	pkgredis "github.com/daybook-io/daybook/pkg/redis"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// How long a processed event id is remembered for deduplication
const dedupTTL = 24 * time.Hour

// Reconciler maps asynchronous payment events onto booking and code state.
// Delivery is at-least-once and possibly out of order, so every path is
// idempotent: the paid-guard inside the transaction is the authority and the
// Redis event-id record is a cheap first filter in front of it.
type Reconciler struct {
	store     repository.Store
	codes     giftcode.Service
	lifecycle booking.Service
	publisher notification.Publisher
	redis     *pkgredis.Client
	log       *logger.Logger
}

// NewReconciler creates a new webhook reconciler. The Redis client is
// optional; without it deduplication falls through to the paid-guard.
func NewReconciler(
	store repository.Store,
	codes giftcode.Service,
	lifecycle booking.Service,
	publisher notification.Publisher,
	redis *pkgredis.Client,
	log *logger.Logger,
) *Reconciler {
	if publisher == nil {
		publisher = notification.NewNoOpPublisher()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Reconciler{
		store:     store,
		codes:     codes,
		lifecycle: lifecycle,
		publisher: publisher,
		redis:     redis,
		log:       log,
	}
}

// eventMetadata is the typed, validated shape of event metadata. Identity
// fields are required per kind; missing ones fail the event explicitly.
type eventMetadata struct {
	Kind            string
	BookingID       string
	CertificateCode string
}

func decodeMetadata(raw map[string]string) (*eventMetadata, error) {
	meta := &eventMetadata{
		Kind:            raw[payment.MetadataKind],
		BookingID:       raw[payment.MetadataBookingID],
		CertificateCode: raw[payment.MetadataCertificateCode],
	}
	switch meta.Kind {
	case payment.KindBooking:
		if meta.BookingID == "" {
			return nil, fmt.Errorf("event metadata missing booking_id")
		}
	case payment.KindGiftCertificate:
		if meta.CertificateCode == "" {
			return nil, fmt.Errorf("event metadata missing certificate_code")
		}
	}
	return meta, nil
}

// Handle processes one verified payment event. Unrecognized event types and
// kinds are accepted and ignored.
func (r *Reconciler) Handle(ctx context.Context, event *payment.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "webhook.reconciler.handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("event_type", event.Type),
	)

	if seen, err := r.alreadyProcessed(ctx, event.ID); err != nil {
		r.log.Warn("event dedup check failed", zap.String("event_id", event.ID), zap.Error(err))
	} else if seen {
		span.SetStatus(codes.Ok, "duplicate")
		return nil
	}

	var err error
	switch event.Type {
	case payment.EventCheckoutCompleted:
		err = r.handleCompleted(ctx, event)
	case payment.EventCheckoutExpired:
		err = r.handleExpired(ctx, event)
	default:
		span.SetStatus(codes.Ok, "ignored")
		return nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	r.markProcessed(ctx, event.ID)
	span.SetStatus(codes.Ok, "")
	return nil
}

// handleCompleted routes a completed checkout by kind
func (r *Reconciler) handleCompleted(ctx context.Context, event *payment.Event) error {
	meta, err := decodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	switch meta.Kind {
	case payment.KindBooking:
		return r.confirmBooking(ctx, meta.BookingID, event.SessionID)
	case payment.KindGiftCertificate:
		return r.activateCertificate(ctx, meta.CertificateCode)
	default:
		r.log.Info("ignoring completed checkout of unknown kind",
			zap.String("event_id", event.ID),
			zap.String("kind", meta.Kind),
		)
		return nil
	}
}

// confirmBooking confirms the booking and applies its reserved code in one
// transaction. Both commit or neither: a booking confirmed without its code
// applied (or the reverse) must never be observable.
func (r *Reconciler) confirmBooking(ctx context.Context, bookingID, sessionID string) error {
	ctx, span := telemetry.StartSpan(ctx, "webhook.reconciler.confirm_booking")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var confirmed *domain.Booking

	err := r.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}

		// Duplicate delivery: already paid means already reconciled
		if b.IsPaid() {
			return nil
		}

		if err := b.Confirm(sessionID); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		if b.UsedGiftCode() && b.GiftAmountCents > 0 {
			// Funds were moved by the checkout's reservation step;
			// this appends the redemption record only.
			if err := r.codes.ApplyCodeIn(ctx, tx.Codes(), b.GiftCode, b.ID, b.GiftAmountCents, true); err != nil {
				return err
			}
		}

		confirmed = b
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Side effects stay outside the transaction and fire exactly once:
	// the duplicate path returns before confirmed is set.
	if confirmed != nil {
		r.publisher.PublishBookingEvent(ctx, domain.EventBookingConfirmed, confirmed)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// activateCertificate activates a purchased gift certificate
func (r *Reconciler) activateCertificate(ctx context.Context, certCode string) error {
	ctx, span := telemetry.StartSpan(ctx, "webhook.reconciler.activate_certificate")
	defer span.End()

	before, err := r.store.Codes().GetByCode(ctx, certCode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	wasActive := before.Status == domain.CodeStatusActive

	code, err := r.codes.ActivateCertificate(ctx, certCode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !wasActive {
		r.publisher.PublishCertificateEvent(ctx, domain.EventCertificateActivated, code)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// handleExpired releases an abandoned checkout's reservations and removes
// the pending booking. A booking already removed by the reaper is success.
func (r *Reconciler) handleExpired(ctx context.Context, event *payment.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "webhook.reconciler.handle_expired")
	defer span.End()

	meta, err := decodeMetadata(event.Metadata)
	if err != nil {
		return err
	}
	if meta.Kind != payment.KindBooking {
		span.SetStatus(codes.Ok, "ignored")
		return nil
	}

	span.SetAttributes(attribute.String("booking_id", meta.BookingID))

	b, err := r.store.Bookings().GetByID(ctx, meta.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			span.SetStatus(codes.Ok, "already removed")
			return nil
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// A completed event may have won the race; do not unwind a paid booking
	if !b.IsPending() {
		span.SetStatus(codes.Ok, "not pending")
		return nil
	}

	r.lifecycle.ReleaseReservations(ctx, b)

	if err := r.store.Bookings().Delete(ctx, b.ID); err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			span.SetStatus(codes.Ok, "already removed")
			return nil
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	r.publisher.PublishBookingEvent(ctx, domain.EventBookingExpired, b)

	span.SetStatus(codes.Ok, "")
	return nil
}

func dedupKey(eventID string) string {
	return "webhook:event:" + eventID
}

// alreadyProcessed reports whether the event id was handled before
func (r *Reconciler) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	if r.redis == nil || eventID == "" {
		return false, nil
	}
	n, err := r.redis.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// markProcessed records the event id after successful handling
func (r *Reconciler) markProcessed(ctx context.Context, eventID string) {
	if r.redis == nil || eventID == "" {
		return
	}
	if err := r.redis.Set(ctx, dedupKey(eventID), "1", dedupTTL).Err(); err != nil {
		r.log.Warn("failed to record processed event", zap.String("event_id", eventID), zap.Error(err))
	}
}
