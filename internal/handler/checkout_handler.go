package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/internal/checkout"
	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/dto"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/pkg/response"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// CheckoutHandler handles checkout HTTP requests
type CheckoutHandler struct {
	checkoutService checkout.Service
	codeService     giftcode.Service
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService checkout.Service, codeService giftcode.Service) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		codeService:     codeService,
	}
}

// InitiateCheckout handles POST /checkout
func (h *CheckoutHandler) InitiateCheckout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkout.initiate")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("activity_id", req.ActivityID),
		attribute.Int("people", req.NumberOfPeople),
		attribute.Bool("has_code", req.GiftCode != ""),
	)

	resp, err := h.checkoutService.InitiateCheckout(ctx, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, resp)
}

// CompleteGiftOnlyCheckout handles POST /checkout/gift-only
func (h *CheckoutHandler) CompleteGiftOnlyCheckout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkout.gift_only")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.GiftOnlyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(attribute.String("activity_id", req.ActivityID))

	resp, err := h.checkoutService.CompleteGiftOnlyCheckout(ctx, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, resp)
}

// InitiateCertificateCheckout handles POST /checkout/certificates
func (h *CheckoutHandler) InitiateCertificateCheckout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkout.certificate")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CertificateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(attribute.Int64("value_cents", req.ValueCents))

	resp, err := h.checkoutService.InitiateCertificateCheckout(ctx, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, resp)
}

// ValidateCode handles POST /codes/validate. Invalid codes are a successful
// quote with valid=false, not an HTTP error: the storefront shows the reason
// inline next to the code field.
func (h *CheckoutHandler) ValidateCode(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkout.validate_code")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	code, err := h.codeService.ValidateCode(ctx, req.Code)
	if err != nil {
		if domain.IsNotFoundError(err) || domain.IsInvalidStateError(err) {
			span.SetStatus(codes.Ok, "invalid code")
			response.Success(c, &dto.ValidateCodeResponse{
				Valid:               false,
				RemainingToPayCents: req.AmountCents,
				Reason:              err.Error(),
			})
			return
		}
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	quote := h.codeService.CalculateDiscount(code, req.AmountCents)

	span.SetAttributes(attribute.Int64("discount_cents", quote.DiscountCents))
	span.SetStatus(codes.Ok, "")
	response.Success(c, &dto.ValidateCodeResponse{
		Valid:               true,
		CodeType:            string(code.Type),
		DiscountCents:       quote.DiscountCents,
		RemainingToPayCents: quote.RemainingToPayCents,
		NewBalanceCents:     quote.NewBalanceCents,
		FullyCoversCharge:   quote.FullyCovers,
	})
}
