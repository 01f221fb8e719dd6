package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/payment"
	"github.com/daybook-io/daybook/internal/webhook"
	"github.com/daybook-io/daybook/pkg/logger"
	"github.com/daybook-io/daybook/pkg/response"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// WebhookHandler receives payment provider webhooks
type WebhookHandler struct {
	gateway    payment.Gateway
	reconciler *webhook.Reconciler
	log        *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(gateway payment.Gateway, reconciler *webhook.Reconciler) *WebhookHandler {
	return &WebhookHandler{
		gateway:    gateway,
		reconciler: reconciler,
		log:        logger.Get(),
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe. A non-2xx response makes
// the provider redeliver, so processing failures return 500 to trigger the
// retry; signature failures are the caller's fault and return 400.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.stripe")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		span.SetStatus(codes.Error, "failed to read body")
		response.BadRequest(c, "failed to read request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		span.SetStatus(codes.Error, "missing signature")
		response.BadRequest(c, "missing Stripe-Signature header")
		return
	}

	event, err := h.gateway.VerifyEvent(payload, signature)
	if err != nil {
		h.log.Warn("webhook signature verification failed", zap.Error(err))
		span.SetStatus(codes.Error, "invalid signature")
		response.BadRequest(c, "invalid webhook signature")
		return
	}

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("event_type", event.Type),
	)

	if err := h.reconciler.Handle(ctx, event); err != nil {
		h.log.Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.Error(c, http.StatusInternalServerError, "WEBHOOK_PROCESSING_FAILED", "event processing failed", "")
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
