package giftcode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/repository"
	"github.com/daybook-io/daybook/pkg/logger"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// Quote is a side-effect-free discount calculation against a charge amount
type Quote struct {
	DiscountCents       int64
	RemainingToPayCents int64
	// NewBalanceCents is the gift balance after applying; nil for promos
	NewBalanceCents *int64
	FullyCovers     bool
}

// Service defines gift-certificate and promo-code business logic. Reserve
// and release follow the same atomic contract as capacity: reservation
// decrements funds (or increments usage) conditionally, release undoes an
// unapplied reservation and nothing else. Applied gift redemptions are
// non-refundable; applied promo uses are reversible on cancellation.
type Service interface {
	// ValidateCode loads a code and rejects ones that cannot offset a
	// charge. Date-expired codes are persisted as expired on the way out.
	ValidateCode(ctx context.Context, codeStr string) (*domain.Code, error)

	// CalculateDiscount quotes a discount without side effects
	CalculateDiscount(code *domain.Code, totalCents int64) Quote

	// ReserveCode atomically claims funds (gift) or a usage slot (promo)
	ReserveCode(ctx context.Context, code *domain.Code, amountCents int64) error

	// ReleaseCode undoes an unapplied reservation; best-effort
	ReleaseCode(ctx context.Context, code *domain.Code, amountCents int64)

	// ApplyCode records a redemption and recomputes the code status.
	// skipBalanceDeduction must be true when ReserveCode already moved
	// the funds, so the numbers are not deducted twice.
	ApplyCode(ctx context.Context, codeStr, bookingID string, amountCents int64, skipBalanceDeduction bool) error

	// ApplyCodeIn is ApplyCode against caller-supplied repositories, for
	// composition inside a surrounding transaction.
	ApplyCodeIn(ctx context.Context, codes repository.CodeRepository, codeStr, bookingID string, amountCents int64, skipBalanceDeduction bool) error

	// RevertCodeUsage is the cancellation-time reversal: promo uses come
	// back and the matching redemption record is removed; gift balances
	// stay spent with the redemption kept as audit trail.
	RevertCodeUsage(ctx context.Context, codeStr, bookingID string) error

	// CreatePendingCertificate creates a gift certificate awaiting
	// payment; it activates when the purchase completes.
	CreatePendingCertificate(ctx context.Context, valueCents int64, currency string) (*domain.Code, error)

	// ActivateCertificate transitions a purchased certificate from
	// pending to active; idempotent when already active.
	ActivateCertificate(ctx context.Context, codeStr string) (*domain.Code, error)
}

type service struct {
	store repository.Store
	log   *logger.Logger
}

// NewService creates a new gift-code service
func NewService(store repository.Store, log *logger.Logger) Service {
	if log == nil {
		log = logger.Get()
	}
	return &service{store: store, log: log}
}

// ValidateCode loads and vets a code for redemption
func (s *service) ValidateCode(ctx context.Context, codeStr string) (*domain.Code, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.validate")
	defer span.End()

	if strings.TrimSpace(codeStr) == "" {
		span.SetStatus(codes.Error, "missing code")
		return nil, domain.ErrMissingCode
	}

	code, err := s.store.Codes().GetByCode(ctx, codeStr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("type", string(code.Type)),
		attribute.String("status", string(code.Status)),
	)

	// Lazy expiration: the date decides, then the stored status catches up
	if code.Status != domain.CodeStatusExpired && code.IsExpiredAt(time.Now()) {
		code.Status = domain.CodeStatusExpired
		if err := s.store.Codes().Update(ctx, code); err != nil {
			s.log.Warn("failed to persist lazy code expiration",
				zap.String("code", code.Code),
				zap.Error(err),
			)
		}
		span.SetStatus(codes.Error, "expired")
		return nil, domain.ErrCodeExpired
	}

	switch code.Status {
	case domain.CodeStatusPending:
		span.SetStatus(codes.Error, "pending")
		return nil, domain.ErrCodeNotActive
	case domain.CodeStatusExpired:
		span.SetStatus(codes.Error, "expired")
		return nil, domain.ErrCodeExpired
	case domain.CodeStatusRedeemed:
		span.SetStatus(codes.Error, "redeemed")
		return nil, domain.ErrCodeRedeemed
	}

	if code.IsGift() && code.CurrentBalanceCents <= 0 {
		span.SetStatus(codes.Error, "zero balance")
		return nil, domain.ErrCodeRedeemed
	}
	if code.AtUsageLimit() {
		span.SetStatus(codes.Error, "usage limit")
		return nil, domain.ErrCodeUsageLimitReached
	}

	span.SetStatus(codes.Ok, "")
	return code, nil
}

// CalculateDiscount quotes a discount without side effects
func (s *service) CalculateDiscount(code *domain.Code, totalCents int64) Quote {
	var discount int64

	switch {
	case code.IsGift():
		discount = min64(code.CurrentBalanceCents, totalCents)
	case code.DiscountType == domain.DiscountTypePercentage:
		discount = totalCents * code.DiscountValue / 100
	default: // fixed
		discount = min64(code.DiscountValue, totalCents)
	}

	if discount < 0 {
		discount = 0
	}

	quote := Quote{
		DiscountCents:       discount,
		RemainingToPayCents: totalCents - discount,
		FullyCovers:         discount >= totalCents,
	}
	if code.IsGift() {
		newBalance := code.CurrentBalanceCents - discount
		quote.NewBalanceCents = &newBalance
	}
	return quote
}

// ReserveCode atomically claims the code's funds or usage slot
func (s *service) ReserveCode(ctx context.Context, code *domain.Code, amountCents int64) error {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", code.Code),
		attribute.Int64("amount_cents", amountCents),
	)

	if amountCents < 0 {
		span.SetStatus(codes.Error, "invalid amount")
		return domain.ErrInvalidAmount
	}

	if code.IsGift() {
		ok, err := s.store.Codes().ReserveBalance(ctx, code.Code, amountCents)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if !ok {
			span.SetStatus(codes.Error, "insufficient balance")
			return domain.ErrInsufficientBalance
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}

	ok, err := s.store.Codes().ReserveUse(ctx, code.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !ok {
		span.SetStatus(codes.Error, "usage limit")
		return domain.ErrCodeUsageLimitReached
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// ReleaseCode undoes an unapplied reservation; errors are logged, the
// caller's outcome is already decided.
func (s *service) ReleaseCode(ctx context.Context, code *domain.Code, amountCents int64) {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("code", code.Code),
		attribute.Int64("amount_cents", amountCents),
	)

	var err error
	if code.IsGift() {
		err = s.store.Codes().ReleaseBalance(ctx, code.Code, amountCents)
	} else {
		err = s.store.Codes().ReleaseUse(ctx, code.Code)
	}
	if err != nil {
		span.RecordError(err)
		s.log.Error("failed to release code reservation",
			zap.String("code", code.Code),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err),
		)
	}
}

// ApplyCode records a redemption against the default store
func (s *service) ApplyCode(ctx context.Context, codeStr, bookingID string, amountCents int64, skipBalanceDeduction bool) error {
	return s.ApplyCodeIn(ctx, s.store.Codes(), codeStr, bookingID, amountCents, skipBalanceDeduction)
}

// ApplyCodeIn records a redemption using the given repository, so the write
// can share a transaction with the booking confirmation.
func (s *service) ApplyCodeIn(ctx context.Context, codesRepo repository.CodeRepository, codeStr, bookingID string, amountCents int64, skipBalanceDeduction bool) error {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Int64("amount_cents", amountCents),
		attribute.Bool("skip_deduction", skipBalanceDeduction),
	)

	if bookingID == "" {
		span.SetStatus(codes.Error, "missing booking id")
		return domain.ErrMissingBookingID
	}

	code, err := codesRepo.GetByCode(ctx, codeStr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Duplicate delivery of the same confirmation must not double-append
	if code.FindRedemption(bookingID) >= 0 {
		span.SetStatus(codes.Ok, "already applied")
		return nil
	}

	if !skipBalanceDeduction {
		if code.IsGift() {
			if code.CurrentBalanceCents < amountCents {
				span.SetStatus(codes.Error, "insufficient balance")
				return domain.ErrInsufficientBalance
			}
			code.CurrentBalanceCents -= amountCents
		} else {
			if code.AtUsageLimit() {
				span.SetStatus(codes.Error, "usage limit")
				return domain.ErrCodeUsageLimitReached
			}
			code.CurrentUses++
		}
	}

	code.Redemptions = append(code.Redemptions, domain.Redemption{
		BookingID:   bookingID,
		AmountCents: amountCents,
		RedeemedAt:  time.Now(),
	})
	code.RecomputeStatus()

	if err := codesRepo.Update(ctx, code); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("status", string(code.Status)))
	span.SetStatus(codes.Ok, "")
	return nil
}

// RevertCodeUsage reverses a promo use on cancellation. Gift balances are
// non-refundable once applied, so for gift codes only the audit trail stays
// and nothing else changes.
func (s *service) RevertCodeUsage(ctx context.Context, codeStr, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.revert")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	code, err := s.store.Codes().GetByCode(ctx, codeStr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if code.IsGift() {
		span.SetStatus(codes.Ok, "gift non-refundable")
		return nil
	}

	idx := code.FindRedemption(bookingID)
	if idx < 0 {
		span.SetStatus(codes.Ok, "no redemption recorded")
		return nil
	}

	code.Redemptions = append(code.Redemptions[:idx], code.Redemptions[idx+1:]...)
	if code.CurrentUses > 0 {
		code.CurrentUses--
	}
	code.RecomputeStatus()

	if err := s.store.Codes().Update(ctx, code); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("status", string(code.Status)))
	span.SetStatus(codes.Ok, "")
	return nil
}

// CreatePendingCertificate creates a gift certificate awaiting payment
func (s *service) CreatePendingCertificate(ctx context.Context, valueCents int64, currency string) (*domain.Code, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.create_certificate")
	defer span.End()

	span.SetAttributes(attribute.Int64("value_cents", valueCents))

	if valueCents <= 0 {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, domain.ErrInvalidAmount
	}

	now := time.Now()
	code := &domain.Code{
		ID:                  uuid.New().String(),
		Code:                generateCertificateCode(),
		Type:                domain.CodeTypeGift,
		Status:              domain.CodeStatusPending,
		InitialValueCents:   valueCents,
		CurrentBalanceCents: valueCents,
		Currency:            currency,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Codes().Create(ctx, code); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("code", code.Code))
	span.SetStatus(codes.Ok, "")
	return code, nil
}

// ActivateCertificate transitions a purchased certificate to active
func (s *service) ActivateCertificate(ctx context.Context, codeStr string) (*domain.Code, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.giftcode.activate_certificate")
	defer span.End()

	code, err := s.store.Codes().GetByCode(ctx, codeStr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if code.Status == domain.CodeStatusActive {
		span.SetStatus(codes.Ok, "already active")
		return code, nil
	}

	if err := code.Activate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Codes().Update(ctx, code); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return code, nil
}

// generateCertificateCode builds a human-shareable certificate code
func generateCertificateCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "GIFT-" + strings.ToUpper(uuid.New().String()[:12])
	}
	return fmt.Sprintf("GIFT-%s", strings.ToUpper(hex.EncodeToString(buf)))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

var _ Service = (*service)(nil)
