package dto

import (
	"time"

	"github.com/daybook-io/daybook/internal/domain"
)

// CheckoutRequest represents a request to start a booking checkout
type CheckoutRequest struct {
	ActivityID     string `json:"activity_id" binding:"required"`
	SessionID      string `json:"session_id,omitempty"`
	NumberOfPeople int    `json:"number_of_people" binding:"required,min=1,max=20"`
	CustomerName   string `json:"customer_name" binding:"required"`
	CustomerEmail  string `json:"customer_email" binding:"required,email"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	GiftCode       string `json:"gift_code,omitempty"`
}

// CheckoutResponse represents the result of starting a checkout. Exactly one
// of CheckoutURL or GiftOnly is set: CheckoutURL redirects to the hosted
// payment page, GiftOnly means the code fully covers the price and the
// client should call the gift-only completion endpoint.
type CheckoutResponse struct {
	BookingID      string     `json:"booking_id,omitempty"`
	CheckoutURL    string     `json:"checkout_url,omitempty"`
	GiftOnly       bool       `json:"gift_only,omitempty"`
	AmountDueCents int64      `json:"amount_due_cents"`
	DiscountCents  int64      `json:"discount_cents,omitempty"`
	Currency       string     `json:"currency"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// GiftOnlyCheckoutRequest completes a checkout fully covered by a code
type GiftOnlyCheckoutRequest struct {
	ActivityID     string `json:"activity_id" binding:"required"`
	SessionID      string `json:"session_id,omitempty"`
	NumberOfPeople int    `json:"number_of_people" binding:"required,min=1,max=20"`
	CustomerName   string `json:"customer_name" binding:"required"`
	CustomerEmail  string `json:"customer_email" binding:"required,email"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	GiftCode       string `json:"gift_code" binding:"required"`
}

// GiftOnlyCheckoutResponse represents a completed gift-only checkout
type GiftOnlyCheckoutResponse struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	DiscountCents int64  `json:"discount_cents"`
	RedirectURL   string `json:"redirect_url"`
}

// CertificateCheckoutRequest starts a gift-certificate purchase checkout
type CertificateCheckoutRequest struct {
	ValueCents     int64  `json:"value_cents" binding:"required,min=100"`
	Currency       string `json:"currency,omitempty"`
	RecipientEmail string `json:"recipient_email,omitempty"`
	PurchaserEmail string `json:"purchaser_email" binding:"required,email"`
}

// CertificateCheckoutResponse represents a started certificate purchase
type CertificateCheckoutResponse struct {
	Code        string `json:"code"`
	CheckoutURL string `json:"checkout_url"`
}

// ValidateCodeRequest asks for a discount quote against a charge amount
type ValidateCodeRequest struct {
	Code        string `json:"code" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,min=0"`
}

// ValidateCodeResponse is the side-effect-free discount quote
type ValidateCodeResponse struct {
	Valid               bool   `json:"valid"`
	CodeType            string `json:"code_type,omitempty"`
	DiscountCents       int64  `json:"discount_cents"`
	RemainingToPayCents int64  `json:"remaining_to_pay_cents"`
	NewBalanceCents     *int64 `json:"new_balance_cents,omitempty"`
	FullyCoversCharge   bool   `json:"fully_covers_charge"`
	Reason              string `json:"reason,omitempty"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID              string     `json:"id"`
	ActivityID      string     `json:"activity_id"`
	SessionIDs      []string   `json:"session_ids"`
	CustomerName    string     `json:"customer_name"`
	CustomerEmail   string     `json:"customer_email"`
	NumberOfPeople  int        `json:"number_of_people"`
	Status          string     `json:"status"`
	PaymentStatus   string     `json:"payment_status"`
	OriginalCents   int64      `json:"original_price_cents"`
	ChargedCents    int64      `json:"charged_cents"`
	GiftCode        string     `json:"gift_code,omitempty"`
	GiftAmountCents int64      `json:"gift_amount_cents,omitempty"`
	Currency        string     `json:"currency"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// UpdatePeopleCountRequest changes the party size of a confirmed booking
type UpdatePeopleCountRequest struct {
	NumberOfPeople int `json:"number_of_people" binding:"required,min=1,max=20"`
}

// AttendanceRequest records post-hoc attendance for a booking
type AttendanceRequest struct {
	Attended bool `json:"attended"`
}

// BookingFromDomain converts a domain Booking to its API representation
func BookingFromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:              b.ID,
		ActivityID:      b.ActivityID,
		SessionIDs:      b.SessionIDs,
		CustomerName:    b.Customer.Name,
		CustomerEmail:   b.Customer.Email,
		NumberOfPeople:  b.NumberOfPeople,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		OriginalCents:   b.OriginalPriceCents,
		ChargedCents:    b.ChargedCents,
		GiftCode:        b.GiftCode,
		GiftAmountCents: b.GiftAmountCents,
		Currency:        b.Currency,
		ExpiresAt:       b.ExpiresAt,
		ConfirmedAt:     b.ConfirmedAt,
		CreatedAt:       b.CreatedAt,
	}
}
