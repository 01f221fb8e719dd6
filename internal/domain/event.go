package domain

import "time"

// Notification event types published after lifecycle transitions
const (
	EventBookingConfirmed     = "booking.confirmed"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingExpired       = "booking.expired"
	EventCertificateActivated = "certificate.activated"
)

// BookingEvent is the payload published to the notification topic after a
// booking transition. Consumers use it for email dispatch; delivery is
// fire-and-forget and never blocks the transition itself.
type BookingEvent struct {
	Type           string    `json:"type"`
	BookingID      string    `json:"booking_id"`
	ActivityID     string    `json:"activity_id"`
	CustomerEmail  string    `json:"customer_email"`
	NumberOfPeople int       `json:"number_of_people"`
	ChargedCents   int64     `json:"charged_cents"`
	Currency       string    `json:"currency"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// CertificateEvent is published when a purchased gift certificate activates
type CertificateEvent struct {
	Type           string    `json:"type"`
	Code           string    `json:"code"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	ValueCents     int64     `json:"value_cents"`
	Currency       string    `json:"currency"`
	OccurredAt     time.Time `json:"occurred_at"`
}
