package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/dto"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/internal/ledger"
	"github.com/daybook-io/daybook/internal/notification"
	"github.com/daybook-io/daybook/internal/payment"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/pkg/logger"
	"github.com/daybook-io/daybook/pkg/saga"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// Saga definition names
const (
	sagaBookingCheckout  = "booking_checkout"
	sagaGiftOnlyCheckout = "gift_only_checkout"
)

// Service orchestrates the multi-step checkout: validate, reserve capacity,
// reserve code funds, create the pending booking, open the hosted payment
// session. Each step's reservation is compensated in reverse order when a
// later step fails, and the failing step's error is what the caller sees.
type Service interface {
	// InitiateCheckout starts a booking checkout. When a supplied code
	// fully covers the price it short-circuits: nothing is reserved and
	// the response directs the client to the gift-only completion.
	InitiateCheckout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)

	// CompleteGiftOnlyCheckout finishes a checkout whose price is fully
	// covered by a code: no payment provider round-trip, the booking is
	// created directly confirmed/paid with zero charged.
	CompleteGiftOnlyCheckout(ctx context.Context, req *dto.GiftOnlyCheckoutRequest) (*dto.GiftOnlyCheckoutResponse, error)

	// InitiateCertificateCheckout starts a gift-certificate purchase. The
	// certificate is created pending and activates when payment completes.
	InitiateCertificateCheckout(ctx context.Context, req *dto.CertificateCheckoutRequest) (*dto.CertificateCheckoutResponse, error)
}

// Config holds checkout orchestration settings
type Config struct {
	// ReservationTTL bounds how long a pending booking holds its spots
	ReservationTTL time.Duration
	// DefaultCurrency prices activities without an explicit currency
	DefaultCurrency string
	// GiftOnlyRedirectURL is where a gift-only completion sends the client
	GiftOnlyRedirectURL string
}

type service struct {
	store        repository.Store
	capacity     ledger.Ledger
	codes        giftcode.Service
	gateway      payment.Gateway
	orchestrator *saga.Orchestrator
	publisher    notification.Publisher
	cfg          Config
	log          *logger.Logger
}

// NewService creates the checkout service and registers its saga definitions
func NewService(
	store repository.Store,
	capacity ledger.Ledger,
	codes giftcode.Service,
	gateway payment.Gateway,
	orchestrator *saga.Orchestrator,
	publisher notification.Publisher,
	cfg Config,
	log *logger.Logger,
) (Service, error) {
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 30 * time.Minute
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "eur"
	}
	if publisher == nil {
		publisher = notification.NewNoOpPublisher()
	}
	if log == nil {
		log = logger.Get()
	}

	s := &service{
		store:        store,
		capacity:     capacity,
		codes:        codes,
		gateway:      gateway,
		orchestrator: orchestrator,
		publisher:    publisher,
		cfg:          cfg,
		log:          log,
	}

	if err := orchestrator.RegisterDefinition(s.bookingCheckoutDefinition()); err != nil {
		return nil, err
	}
	if err := orchestrator.RegisterDefinition(s.giftOnlyCheckoutDefinition()); err != nil {
		return nil, err
	}

	return s, nil
}

// InitiateCheckout starts a booking checkout
func (s *service) InitiateCheckout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.initiate")
	defer span.End()

	span.SetAttributes(
		attribute.String("activity_id", req.ActivityID),
		attribute.Int("people", req.NumberOfPeople),
	)

	pricing, err := s.resolveAndPrice(ctx, req.ActivityID, req.SessionID, req.NumberOfPeople, req.GiftCode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Short-circuit: fully covered checkouts reserve nothing here and
	// finish on the simpler confirm-immediately path.
	if pricing.quote != nil && pricing.quote.FullyCovers {
		span.SetAttributes(attribute.Bool("gift_only", true))
		span.SetStatus(codes.Ok, "")
		return &dto.CheckoutResponse{
			GiftOnly:       true,
			AmountDueCents: 0,
			DiscountCents:  pricing.quote.DiscountCents,
			Currency:       pricing.currency,
		}, nil
	}

	data := s.sagaData(req.ActivityID, req.SessionID, req.NumberOfPeople, req.GiftCode, pricing)
	data["customer_name"] = req.CustomerName
	data["customer_email"] = req.CustomerEmail
	data["customer_phone"] = req.CustomerPhone

	instance, err := s.orchestrator.Execute(ctx, sagaBookingCheckout, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := instance.GetData()
	expiresAt := time.Now().Add(s.cfg.ReservationTTL)

	span.SetAttributes(attribute.String("booking_id", dataString(result, "booking_id")))
	span.SetStatus(codes.Ok, "")
	return &dto.CheckoutResponse{
		BookingID:      dataString(result, "booking_id"),
		CheckoutURL:    dataString(result, "checkout_url"),
		AmountDueCents: pricing.chargeCents,
		DiscountCents:  pricing.discountCents,
		Currency:       pricing.currency,
		ExpiresAt:      &expiresAt,
	}, nil
}

// CompleteGiftOnlyCheckout finishes a fully-covered checkout
func (s *service) CompleteGiftOnlyCheckout(ctx context.Context, req *dto.GiftOnlyCheckoutRequest) (*dto.GiftOnlyCheckoutResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.gift_only")
	defer span.End()

	span.SetAttributes(
		attribute.String("activity_id", req.ActivityID),
		attribute.Int("people", req.NumberOfPeople),
	)

	pricing, err := s.resolveAndPrice(ctx, req.ActivityID, req.SessionID, req.NumberOfPeople, req.GiftCode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Re-validate the quote: price or balance may have moved since the
	// short-circuit was offered.
	if pricing.quote == nil || !pricing.quote.FullyCovers {
		span.SetStatus(codes.Error, "discount no longer covers price")
		return nil, domain.ErrInsufficientBalance
	}

	data := s.sagaData(req.ActivityID, req.SessionID, req.NumberOfPeople, req.GiftCode, pricing)
	data["customer_name"] = req.CustomerName
	data["customer_email"] = req.CustomerEmail
	data["customer_phone"] = req.CustomerPhone

	instance, err := s.orchestrator.Execute(ctx, sagaGiftOnlyCheckout, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := instance.GetData()
	bookingID := dataString(result, "booking_id")

	if booking, err := s.store.Bookings().GetByID(ctx, bookingID); err == nil {
		s.publisher.PublishBookingEvent(ctx, domain.EventBookingConfirmed, booking)
	}

	span.SetAttributes(attribute.String("booking_id", bookingID))
	span.SetStatus(codes.Ok, "")
	return &dto.GiftOnlyCheckoutResponse{
		BookingID:     bookingID,
		Status:        string(domain.BookingStatusConfirmed),
		DiscountCents: pricing.discountCents,
		RedirectURL:   s.cfg.GiftOnlyRedirectURL,
	}, nil
}

// InitiateCertificateCheckout starts a gift-certificate purchase
func (s *service) InitiateCertificateCheckout(ctx context.Context, req *dto.CertificateCheckoutRequest) (*dto.CertificateCheckoutResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.certificate")
	defer span.End()

	span.SetAttributes(attribute.Int64("value_cents", req.ValueCents))

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	code, err := s.codes.CreatePendingCertificate(ctx, req.ValueCents, currency)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, &payment.CheckoutParams{
		Description:   fmt.Sprintf("Gift certificate %s", code.Code),
		AmountCents:   req.ValueCents,
		Currency:      currency,
		CustomerEmail: req.PurchaserEmail,
		ExpiresIn:     s.cfg.ReservationTTL,
		Metadata: map[string]string{
			payment.MetadataKind:            payment.KindGiftCertificate,
			payment.MetadataCertificateCode: code.Code,
		},
	})
	if err != nil {
		// The pending certificate stays behind; it is not redeemable
		// and a retried purchase creates a fresh code.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
	}

	span.SetAttributes(attribute.String("code", code.Code))
	span.SetStatus(codes.Ok, "")
	return &dto.CertificateCheckoutResponse{
		Code:        code.Code,
		CheckoutURL: session.URL,
	}, nil
}

// pricing carries the resolved sessions and amounts into the saga
type pricing struct {
	sessionIDs    []string
	originalCents int64
	discountCents int64
	chargeCents   int64
	currency      string
	description   string
	quote         *giftcode.Quote
}

// resolveAndPrice resolves the activity's session set and quotes the price.
// All failures here are terminal: nothing has been reserved yet.
func (s *service) resolveAndPrice(ctx context.Context, activityID, sessionID string, people int, giftCode string) (*pricing, error) {
	if people < 1 {
		return nil, domain.ErrInvalidPeopleCount
	}

	activity, err := s.store.Activities().GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !activity.IsBookable() {
		return nil, domain.ErrActivityNotPublished
	}

	var sessions []*domain.Session
	if activity.IsCourse() {
		// A course enrollment spans every scheduled session
		sessions, err = s.store.Sessions().ListScheduledByActivity(ctx, activityID)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, domain.ErrSessionNotFound
		}
	} else {
		if sessionID == "" {
			return nil, domain.ErrSessionNotFound
		}
		session, err := s.store.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.ActivityID != activityID {
			return nil, domain.ErrSessionNotFound
		}
		if !session.IsBookable() {
			return nil, domain.ErrSessionNotBookable
		}
		sessions = []*domain.Session{session}
	}

	p := &pricing{
		originalCents: activity.UnitPriceCents * int64(people),
		currency:      activity.Currency,
		description:   activity.Title,
	}
	if p.currency == "" {
		p.currency = s.cfg.DefaultCurrency
	}
	for _, session := range sessions {
		p.sessionIDs = append(p.sessionIDs, session.ID)
	}
	p.chargeCents = p.originalCents

	if giftCode != "" {
		code, err := s.codes.ValidateCode(ctx, giftCode)
		if err != nil {
			return nil, err
		}
		quote := s.codes.CalculateDiscount(code, p.originalCents)
		p.quote = &quote
		p.discountCents = quote.DiscountCents
		p.chargeCents = quote.RemainingToPayCents
	}

	return p, nil
}

// sagaData builds the initial saga data from a priced request
func (s *service) sagaData(activityID, sessionID string, people int, giftCode string, p *pricing) saga.Data {
	return saga.Data{
		"activity_id":    activityID,
		"session_id":     sessionID,
		"session_ids":    p.sessionIDs,
		"people":         people,
		"gift_code":      giftCode,
		"original_cents": p.originalCents,
		"discount_cents": p.discountCents,
		"charge_cents":   p.chargeCents,
		"currency":       p.currency,
		"description":    p.description,
	}
}

// bookingCheckoutDefinition wires the paid checkout steps
func (s *service) bookingCheckoutDefinition() *saga.Definition {
	return saga.NewDefinition(sagaBookingCheckout).
		AddStep(&saga.Step{
			Name:       "reserve_capacity",
			Execute:    s.stepReserveCapacity,
			Compensate: s.compensateReserveCapacity,
		}).
		AddStep(&saga.Step{
			Name:       "reserve_code",
			Execute:    s.stepReserveCode,
			Compensate: s.compensateReserveCode,
		}).
		AddStep(&saga.Step{
			Name:       "create_booking",
			Execute:    s.stepCreatePendingBooking,
			Compensate: s.compensateCreateBooking,
		}).
		AddStep(&saga.Step{
			Name:    "initiate_payment",
			Execute: s.stepInitiatePayment,
			// The provider session expires on its own; there is
			// nothing to unwind.
		}).
		AddStep(&saga.Step{
			Name:    "attach_payment_session",
			Execute: s.stepAttachPaymentSession,
		}).
		WithTimeout(2 * time.Minute)
}

// giftOnlyCheckoutDefinition wires the confirm-immediately steps
func (s *service) giftOnlyCheckoutDefinition() *saga.Definition {
	return saga.NewDefinition(sagaGiftOnlyCheckout).
		AddStep(&saga.Step{
			Name:       "reserve_capacity",
			Execute:    s.stepReserveCapacity,
			Compensate: s.compensateReserveCapacity,
		}).
		AddStep(&saga.Step{
			Name:       "reserve_code",
			Execute:    s.stepReserveCode,
			Compensate: s.compensateReserveCode,
		}).
		AddStep(&saga.Step{
			Name:       "create_confirmed_booking",
			Execute:    s.stepCreateConfirmedBooking,
			Compensate: s.compensateCreateBooking,
		}).
		AddStep(&saga.Step{
			Name: "apply_code",
			// Funds moved at reserve_code; this only records the
			// redemption, so there is nothing of its own to undo.
			Execute: s.stepApplyCode,
		}).
		WithTimeout(time.Minute)
}

// stepReserveCapacity decrements every session's availability as one unit
func (s *service) stepReserveCapacity(ctx context.Context, data saga.Data) (saga.Data, error) {
	ids := dataStrings(data, "session_ids")
	people := dataInt(data, "people")

	if err := s.capacity.Reserve(ctx, ids, people); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *service) compensateReserveCapacity(ctx context.Context, data saga.Data) error {
	s.capacity.Release(ctx, dataStrings(data, "session_ids"), dataInt(data, "people"))
	return nil
}

// stepReserveCode claims the code's funds or usage slot when a partial
// discount is in play; a checkout without a code passes straight through.
func (s *service) stepReserveCode(ctx context.Context, data saga.Data) (saga.Data, error) {
	codeStr := dataString(data, "gift_code")
	discount := dataInt64(data, "discount_cents")
	if codeStr == "" || discount <= 0 {
		return saga.Data{"code_reserved": false}, nil
	}

	code, err := s.codes.ValidateCode(ctx, codeStr)
	if err != nil {
		return nil, err
	}
	if err := s.codes.ReserveCode(ctx, code, discount); err != nil {
		return nil, err
	}
	return saga.Data{"code_reserved": true, "code_type": string(code.Type)}, nil
}

func (s *service) compensateReserveCode(ctx context.Context, data saga.Data) error {
	if !dataBool(data, "code_reserved") {
		return nil
	}
	code, err := s.store.Codes().GetByCode(ctx, dataString(data, "gift_code"))
	if err != nil {
		return err
	}
	s.codes.ReleaseCode(ctx, code, dataInt64(data, "discount_cents"))
	return nil
}

// stepCreatePendingBooking persists the booking in pending/unpaid with the
// reservation TTL. Capacity was already committed by reserve_capacity.
func (s *service) stepCreatePendingBooking(ctx context.Context, data saga.Data) (saga.Data, error) {
	booking := s.bookingFromData(data)
	expiresAt := time.Now().Add(s.cfg.ReservationTTL)
	booking.ExpiresAt = &expiresAt

	if err := s.store.Bookings().Create(ctx, booking); err != nil {
		return nil, err
	}
	return saga.Data{"booking_id": booking.ID}, nil
}

// stepCreateConfirmedBooking persists a gift-only booking directly in
// confirmed/paid with zero charged to the payment provider.
func (s *service) stepCreateConfirmedBooking(ctx context.Context, data saga.Data) (saga.Data, error) {
	now := time.Now()
	booking := s.bookingFromData(data)
	booking.Status = domain.BookingStatusConfirmed
	booking.PaymentStatus = domain.PaymentStatusPaid
	booking.ChargedCents = 0
	booking.ConfirmedAt = &now

	if err := s.store.Bookings().Create(ctx, booking); err != nil {
		return nil, err
	}
	return saga.Data{"booking_id": booking.ID}, nil
}

func (s *service) compensateCreateBooking(ctx context.Context, data saga.Data) error {
	bookingID := dataString(data, "booking_id")
	if bookingID == "" {
		return nil
	}
	return s.store.Bookings().Delete(ctx, bookingID)
}

// stepApplyCode records the redemption of a fully-covering code. The funds
// were already moved by reserve_code, so the deduction is skipped.
func (s *service) stepApplyCode(ctx context.Context, data saga.Data) (saga.Data, error) {
	err := s.codes.ApplyCode(ctx,
		dataString(data, "gift_code"),
		dataString(data, "booking_id"),
		dataInt64(data, "discount_cents"),
		true,
	)
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// stepInitiatePayment opens the hosted payment session for the remainder
func (s *service) stepInitiatePayment(ctx context.Context, data saga.Data) (saga.Data, error) {
	session, err := s.gateway.CreateCheckoutSession(ctx, &payment.CheckoutParams{
		Description:   dataString(data, "description"),
		AmountCents:   dataInt64(data, "charge_cents"),
		Currency:      dataString(data, "currency"),
		CustomerEmail: dataString(data, "customer_email"),
		ExpiresIn:     s.cfg.ReservationTTL,
		Metadata: map[string]string{
			payment.MetadataKind:      payment.KindBooking,
			payment.MetadataBookingID: dataString(data, "booking_id"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentProvider, err)
	}
	return saga.Data{
		"payment_session_id": session.ID,
		"checkout_url":       session.URL,
	}, nil
}

// stepAttachPaymentSession persists the provider's session id so webhook
// events can find the booking.
func (s *service) stepAttachPaymentSession(ctx context.Context, data saga.Data) (saga.Data, error) {
	booking, err := s.store.Bookings().GetByID(ctx, dataString(data, "booking_id"))
	if err != nil {
		return nil, err
	}
	booking.PaymentSessionID = dataString(data, "payment_session_id")
	if err := s.store.Bookings().Update(ctx, booking); err != nil {
		return nil, err
	}
	return nil, nil
}

// bookingFromData builds the common booking fields from saga data
func (s *service) bookingFromData(data saga.Data) *domain.Booking {
	now := time.Now()
	return &domain.Booking{
		ID:         uuid.New().String(),
		ActivityID: dataString(data, "activity_id"),
		SessionIDs: dataStrings(data, "session_ids"),
		Customer: domain.Customer{
			Name:  dataString(data, "customer_name"),
			Email: dataString(data, "customer_email"),
			Phone: dataString(data, "customer_phone"),
		},
		NumberOfPeople:     dataInt(data, "people"),
		Status:             domain.BookingStatusPending,
		PaymentStatus:      domain.PaymentStatusUnpaid,
		OriginalPriceCents: dataInt64(data, "original_cents"),
		ChargedCents:       dataInt64(data, "charge_cents"),
		Currency:           dataString(data, "currency"),
		GiftCode:           dataString(data, "gift_code"),
		GiftAmountCents:    dataInt64(data, "discount_cents"),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Saga data accessors. Values round-trip through JSON in some stores, so
// numbers may come back as float64 and string slices as []interface{}.

func dataString(data saga.Data, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func dataBool(data saga.Data, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func dataInt(data saga.Data, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func dataInt64(data saga.Data, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func dataStrings(data saga.Data, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var _ Service = (*service)(nil)
