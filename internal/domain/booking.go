package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusAttended  BookingStatus = "attended"
	BookingStatusNoShow    BookingStatus = "no_show"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusAttended, BookingStatusNoShow:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusFailed:
		return true
	}
	return false
}

// Customer identifies the person a booking is for
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Booking represents a reservation of one or more sessions. SessionIDs is
// never empty: one element for a single class, all scheduled sessions for a
// course enrollment. Capacity is decremented when the booking is created in
// pending; confirmation changes no capacity.
type Booking struct {
	ID             string        `json:"id"`
	ActivityID     string        `json:"activity_id"`
	SessionIDs     []string      `json:"session_ids"`
	Customer       Customer      `json:"customer"`
	NumberOfPeople int           `json:"number_of_people"`
	Status         BookingStatus `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`

	OriginalPriceCents int64  `json:"original_price_cents"`
	ChargedCents       int64  `json:"charged_cents"`
	Currency           string `json:"currency"`

	GiftCode         string `json:"gift_code,omitempty"`
	GiftAmountCents  int64  `json:"gift_amount_cents,omitempty"`
	PaymentSessionID string `json:"payment_session_id,omitempty"`
	Notes            string `json:"notes,omitempty"`

	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate validates the fields required to persist a booking
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrMissingBookingID
	}
	if len(b.SessionIDs) == 0 {
		return ErrSessionNotFound
	}
	if b.NumberOfPeople < 1 {
		return ErrInvalidPeopleCount
	}
	if b.OriginalPriceCents < 0 || b.ChargedCents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsPending checks if the booking is awaiting payment
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// IsPaid checks if payment has been received
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// IsCancelled checks if the booking is cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// IsExpiredAt checks if the pending booking has passed its deadline
func (b *Booking) IsExpiredAt(t time.Time) bool {
	return b.ExpiresAt != nil && t.After(*b.ExpiresAt)
}

// UsedGiftCode checks if a gift or promo code is attached
func (b *Booking) UsedGiftCode() bool {
	return b.GiftCode != ""
}

// CanCancel checks if the booking may transition to cancelled
func (b *Booking) CanCancel() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// Confirm transitions the booking to confirmed/paid and clears the pending
// expiration. Already-paid bookings are left untouched so duplicate payment
// events have no effect.
func (b *Booking) Confirm(paymentSessionID string) error {
	if b.IsPaid() {
		return nil
	}
	if b.Status != BookingStatusPending {
		return ErrBookingNotPending
	}
	now := time.Now()
	b.Status = BookingStatusConfirmed
	b.PaymentStatus = PaymentStatusPaid
	if paymentSessionID != "" {
		b.PaymentSessionID = paymentSessionID
	}
	b.ExpiresAt = nil
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Cancel transitions the booking to cancelled
func (b *Booking) Cancel() error {
	if b.Status == BookingStatusCancelled {
		return ErrBookingAlreadyCancelled
	}
	if !b.CanCancel() {
		return ErrBookingNotPending
	}
	now := time.Now()
	b.Status = BookingStatusCancelled
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}

// MarkAttendance records post-hoc attendance; no capacity effect
func (b *Booking) MarkAttendance(attended bool) error {
	if b.Status != BookingStatusConfirmed && b.Status != BookingStatusAttended && b.Status != BookingStatusNoShow {
		return ErrBookingNotConfirmed
	}
	if attended {
		b.Status = BookingStatusAttended
	} else {
		b.Status = BookingStatusNoShow
	}
	b.UpdatedAt = time.Now()
	return nil
}
