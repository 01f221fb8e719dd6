package payment

import (
	"context"
	"time"
)

// Provider-agnostic event types the reconciler consumes
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// Metadata keys carried through the payment provider and back on events.
// kind routes the event to the booking or certificate flow.
const (
	MetadataKind            = "kind"
	KindBooking             = "booking"
	KindGiftCertificate     = "gift_certificate"
	MetadataBookingID       = "booking_id"
	MetadataCertificateCode = "certificate_code"
)

// CheckoutParams describes a hosted checkout session to create
type CheckoutParams struct {
	Description   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	// ExpiresIn bounds how long the hosted page stays payable; it should
	// match the pending booking's TTL so both expire together.
	ExpiresIn time.Duration
	Metadata  map[string]string
}

// CheckoutSession is the provider's hosted payment session
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// Event is a verified, decoded asynchronous payment event
type Event struct {
	ID        string
	Type      string
	SessionID string
	Metadata  map[string]string
}

// Gateway abstracts the external payment provider. Event payloads are
// verified against the shared webhook secret before being decoded.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutSession, error)
	VerifyEvent(payload []byte, signature string) (*Event, error)
}
