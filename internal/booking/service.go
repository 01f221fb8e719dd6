package booking

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/internal/ledger"
	"github.com/daybook-io/daybook/internal/notification"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/pkg/logger"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// Service governs booking state transitions and the capacity deltas they
// imply. Capacity is decremented once, when the checkout creates the pending
// booking; confirmation changes no capacity. Duplicating the decrement on
// confirm would double-book, so every transition here is explicit about its
// capacity effect.
type Service interface {
	// GetBooking retrieves a booking by ID
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)

	// ListBookings retrieves a customer's bookings
	ListBookings(ctx context.Context, email string, limit, offset int) ([]*domain.Booking, error)

	// ConfirmBooking transitions pending to confirmed/paid. No capacity
	// change. Confirming an already-paid booking is a successful no-op.
	ConfirmBooking(ctx context.Context, bookingID, paymentSessionID string) (*domain.Booking, error)

	// CancelBooking cancels a pending or confirmed booking, releasing its
	// capacity and reversing promo usage. Gift balances stay spent.
	CancelBooking(ctx context.Context, bookingID string) (*domain.Booking, error)

	// UpdatePeopleCount edits a confirmed booking's party size, releasing
	// or reserving the capacity delta.
	UpdatePeopleCount(ctx context.Context, bookingID string, people int) (*domain.Booking, error)

	// MarkAttendance records attended/no-show; no capacity effect
	MarkAttendance(ctx context.Context, bookingID string, attended bool) (*domain.Booking, error)

	// ReleaseReservations releases everything a pending booking holds:
	// its capacity and any reserved-but-unapplied code funds. Best-effort.
	ReleaseReservations(ctx context.Context, booking *domain.Booking)
}

type service struct {
	store     repository.Store
	capacity  ledger.Ledger
	codes     giftcode.Service
	publisher notification.Publisher
	log       *logger.Logger
}

// NewService creates a new booking lifecycle service
func NewService(
	store repository.Store,
	capacity ledger.Ledger,
	codes giftcode.Service,
	publisher notification.Publisher,
	log *logger.Logger,
) Service {
	if publisher == nil {
		publisher = notification.NewNoOpPublisher()
	}
	if log == nil {
		log = logger.Get()
	}
	return &service{
		store:     store,
		capacity:  capacity,
		codes:     codes,
		publisher: publisher,
		log:       log,
	}
}

// GetBooking retrieves a booking by ID
func (s *service) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ListBookings retrieves a customer's bookings
func (s *service) ListBookings(ctx context.Context, email string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.store.Bookings().ListByEmail(ctx, email, limit, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// ConfirmBooking transitions pending to confirmed/paid
func (s *service) ConfirmBooking(ctx context.Context, bookingID, paymentSessionID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Idempotency guard against duplicate payment events
	if booking.IsPaid() {
		span.SetStatus(codes.Ok, "already paid")
		return booking, nil
	}

	if err := booking.Confirm(paymentSessionID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Bookings().Update(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publisher.PublishBookingEvent(ctx, domain.EventBookingConfirmed, booking)

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// CancelBooking cancels a booking and releases its capacity
func (s *service) CancelBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := booking.Cancel(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Bookings().Update(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Seats come back; gift money does not. Promo uses are reversible.
	s.capacity.Release(ctx, booking.SessionIDs, booking.NumberOfPeople)
	if booking.UsedGiftCode() {
		if err := s.codes.RevertCodeUsage(ctx, booking.GiftCode, booking.ID); err != nil {
			s.log.Error("failed to revert code usage on cancel",
				zap.String("booking_id", booking.ID),
				zap.String("code", booking.GiftCode),
				zap.Error(err),
			)
		}
	}

	s.publisher.PublishBookingEvent(ctx, domain.EventBookingCancelled, booking)

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// UpdatePeopleCount edits a confirmed booking's party size
func (s *service) UpdatePeopleCount(ctx context.Context, bookingID string, people int) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.update_people")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Int("people", people),
	)

	if people < 1 {
		span.SetStatus(codes.Error, "invalid people count")
		return nil, domain.ErrInvalidPeopleCount
	}

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.Status != domain.BookingStatusConfirmed {
		span.SetStatus(codes.Error, "not confirmed")
		return nil, domain.ErrBookingNotConfirmed
	}

	delta := people - booking.NumberOfPeople
	if delta == 0 {
		span.SetStatus(codes.Ok, "unchanged")
		return booking, nil
	}

	previous := booking.NumberOfPeople
	booking.NumberOfPeople = people
	booking.ChargedCents = booking.ChargedCents / int64(previous) * int64(people)
	if err := s.store.Bookings().Update(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Capacity follows the edit. A failed reserve on growth is logged but
	// does not roll the edit back; the operator asked for the new count.
	if delta < 0 {
		s.capacity.Release(ctx, booking.SessionIDs, -delta)
	} else {
		if err := s.capacity.Reserve(ctx, booking.SessionIDs, delta); err != nil {
			s.log.Warn("people count grew past available capacity",
				zap.String("booking_id", booking.ID),
				zap.Int("delta", delta),
				zap.Error(err),
			)
		}
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// MarkAttendance records attended or no-show
func (s *service) MarkAttendance(ctx context.Context, bookingID string, attended bool) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.mark_attendance")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Bool("attended", attended),
	)

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := booking.MarkAttendance(attended); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Bookings().Update(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ReleaseReservations releases a pending booking's capacity and any
// reserved-but-unapplied code funds. Called on expiration, where the money
// was never applied, so the code release is the full reservation undo.
func (s *service) ReleaseReservations(ctx context.Context, booking *domain.Booking) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.release_reservations")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", booking.ID))

	s.capacity.Release(ctx, booking.SessionIDs, booking.NumberOfPeople)

	if booking.UsedGiftCode() && booking.GiftAmountCents > 0 {
		code, err := s.store.Codes().GetByCode(ctx, booking.GiftCode)
		if err != nil {
			s.log.Error("failed to load code for reservation release",
				zap.String("booking_id", booking.ID),
				zap.String("code", booking.GiftCode),
				zap.Error(err),
			)
		} else {
			s.codes.ReleaseCode(ctx, code, booking.GiftAmountCents)
		}
	}

	span.SetStatus(codes.Ok, "")
}

var _ Service = (*service)(nil)
