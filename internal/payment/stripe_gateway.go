package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/pkg/telemetry"
)

// Stripe requires checkout sessions to live at least this long
const minCheckoutExpiry = 30 * time.Minute

// StripeGateway implements Gateway using Stripe hosted checkout
type StripeGateway struct {
	config *StripeConfig
}

// StripeConfig holds configuration for the Stripe gateway
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// CreateCheckoutSession creates a hosted checkout page for the given amount
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutSession, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.stripe.create_checkout_session")
	defer span.End()

	if params == nil {
		return nil, fmt.Errorf("checkout params are required")
	}

	span.SetAttributes(
		attribute.Int64("amount_cents", params.AmountCents),
		attribute.String("currency", params.Currency),
	)

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = g.config.SuccessURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = g.config.CancelURL
	}

	expiresIn := params.ExpiresIn
	if expiresIn < minCheckoutExpiry {
		expiresIn = minCheckoutExpiry
	}
	expiresAt := time.Now().Add(expiresIn)

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		ExpiresAt:  stripe.Int64(expiresAt.Unix()),
		Metadata:   params.Metadata,
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	sess, err := checkoutsession.New(sessionParams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	span.SetAttributes(attribute.String("session_id", sess.ID))
	span.SetStatus(codes.Ok, "")

	return &CheckoutSession{
		ID:        sess.ID,
		URL:       sess.URL,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyEvent checks the webhook signature and decodes the event into the
// provider-agnostic shape the reconciler consumes.
func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.config.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	decoded := &Event{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		decoded.SessionID = sess.ID
		decoded.Metadata = sess.Metadata
	}

	return decoded, nil
}

var _ Gateway = (*StripeGateway)(nil)
