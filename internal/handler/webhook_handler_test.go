package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/daybook-io/daybook/internal/payment"
	"github.com/daybook-io/daybook/internal/webhook"
)

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	VerifyEventFunc func(payload []byte, signature string) (*payment.Event, error)
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, params *payment.CheckoutParams) (*payment.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (m *MockGateway) VerifyEvent(payload []byte, signature string) (*payment.Event, error) {
	if m.VerifyEventFunc != nil {
		return m.VerifyEventFunc(payload, signature)
	}
	return nil, errors.New("invalid signature")
}

var _ payment.Gateway = (*MockGateway)(nil)

func setupWebhookRouter(gateway *MockGateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	reconciler := webhook.NewReconciler(nil, nil, nil, nil, nil, nil)
	handler := NewWebhookHandler(gateway, reconciler)
	router.POST("/webhooks/stripe", handler.HandleStripeWebhook)

	return router
}

func postWebhook(router *gin.Engine, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_MissingSignature(t *testing.T) {
	router := setupWebhookRouter(&MockGateway{})

	w := postWebhook(router, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	router := setupWebhookRouter(&MockGateway{
		VerifyEventFunc: func(payload []byte, signature string) (*payment.Event, error) {
			return nil, errors.New("signature mismatch")
		},
	})

	w := postWebhook(router, "t=1,v1=bad")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.False(t, envelope.Success)
}

func TestWebhookHandler_IgnoredEventAcknowledged(t *testing.T) {
	// Event types the reconciler does not care about must still be
	// acknowledged, otherwise the provider keeps redelivering them.
	router := setupWebhookRouter(&MockGateway{
		VerifyEventFunc: func(payload []byte, signature string) (*payment.Event, error) {
			return &payment.Event{ID: "evt_1", Type: "payment_intent.created"}, nil
		},
	})

	w := postWebhook(router, "t=1,v1=good")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestWebhookHandler_ProcessingFailureReturns500(t *testing.T) {
	// A completed booking event without a booking_id cannot be reconciled;
	// the 500 makes the provider retry the delivery.
	router := setupWebhookRouter(&MockGateway{
		VerifyEventFunc: func(payload []byte, signature string) (*payment.Event, error) {
			return &payment.Event{
				ID:        "evt_1",
				Type:      payment.EventCheckoutCompleted,
				SessionID: "cs_123",
				Metadata:  map[string]string{payment.MetadataKind: payment.KindBooking},
			}, nil
		},
	})

	w := postWebhook(router, "t=1,v1=good")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "WEBHOOK_PROCESSING_FAILED", envelope.Error.Code)
}
