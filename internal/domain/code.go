package domain

import "time"

// CodeType discriminates stored-value gift certificates from promo codes
type CodeType string

const (
	CodeTypeGift  CodeType = "gift"
	CodeTypePromo CodeType = "promo"
)

// IsValid checks if the type is a valid CodeType
func (t CodeType) IsValid() bool {
	switch t {
	case CodeTypeGift, CodeTypePromo:
		return true
	}
	return false
}

// CodeStatus represents the redemption status of a code
type CodeStatus string

const (
	CodeStatusPending  CodeStatus = "pending"
	CodeStatusActive   CodeStatus = "active"
	CodeStatusPartial  CodeStatus = "partial"
	CodeStatusRedeemed CodeStatus = "redeemed"
	CodeStatusExpired  CodeStatus = "expired"
)

// IsValid checks if the status is a valid CodeStatus
func (s CodeStatus) IsValid() bool {
	switch s {
	case CodeStatusPending, CodeStatusActive, CodeStatusPartial, CodeStatusRedeemed, CodeStatusExpired:
		return true
	}
	return false
}

// DiscountType represents how a promo code computes its discount
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Redemption is an append-only audit record of a code applied to a booking
type Redemption struct {
	BookingID   string    `json:"booking_id"`
	AmountCents int64     `json:"amount_cents"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

// Code is a gift certificate or promo code. Gift codes carry a depletable
// balance that is never restored once a booking is confirmed. Promo codes
// carry a usage counter that is reversible on cancellation.
type Code struct {
	ID     string     `json:"id"`
	Code   string     `json:"code"`
	Type   CodeType   `json:"type"`
	Status CodeStatus `json:"status"`

	// gift fields
	InitialValueCents   int64  `json:"initial_value_cents,omitempty"`
	CurrentBalanceCents int64  `json:"current_balance_cents,omitempty"`
	Currency            string `json:"currency,omitempty"`

	// promo fields; nil MaxUses means unlimited
	DiscountType  DiscountType `json:"discount_type,omitempty"`
	DiscountValue int64        `json:"discount_value,omitempty"`
	MaxUses       *int         `json:"max_uses,omitempty"`
	CurrentUses   int          `json:"current_uses"`

	Redemptions []Redemption `json:"redemptions,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsGift checks if the code is a stored-value gift certificate
func (c *Code) IsGift() bool {
	return c.Type == CodeTypeGift
}

// IsPromo checks if the code is a promo code
func (c *Code) IsPromo() bool {
	return c.Type == CodeTypePromo
}

// IsExpiredAt checks if the code's expiry date has passed
func (c *Code) IsExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && t.After(*c.ExpiresAt)
}

// IsRedeemable checks if the code can currently offset a charge. Gift codes
// need a positive balance; promo codes need headroom under MaxUses.
func (c *Code) IsRedeemable() bool {
	if c.Status != CodeStatusActive && c.Status != CodeStatusPartial {
		return false
	}
	if c.IsGift() {
		return c.CurrentBalanceCents > 0
	}
	return c.MaxUses == nil || c.CurrentUses < *c.MaxUses
}

// AtUsageLimit checks if a promo code has exhausted its uses
func (c *Code) AtUsageLimit() bool {
	return c.IsPromo() && c.MaxUses != nil && c.CurrentUses >= *c.MaxUses
}

// RecomputeStatus derives the status from the current balance or usage count.
// It never resurrects pending or expired codes.
func (c *Code) RecomputeStatus() {
	if c.Status == CodeStatusPending || c.Status == CodeStatusExpired {
		return
	}
	if c.IsGift() {
		switch {
		case c.CurrentBalanceCents <= 0:
			c.Status = CodeStatusRedeemed
		case c.CurrentBalanceCents < c.InitialValueCents:
			c.Status = CodeStatusPartial
		default:
			c.Status = CodeStatusActive
		}
		return
	}
	if c.AtUsageLimit() {
		c.Status = CodeStatusRedeemed
	} else {
		c.Status = CodeStatusActive
	}
}

// Activate transitions a purchased gift certificate from pending to active.
// Activating an already-active certificate is a no-op.
func (c *Code) Activate() error {
	if c.Status == CodeStatusActive {
		return nil
	}
	if c.Status != CodeStatusPending {
		return ErrCodeNotActive
	}
	c.Status = CodeStatusActive
	c.UpdatedAt = time.Now()
	return nil
}

// FindRedemption returns the index of the redemption for bookingID, or -1
func (c *Code) FindRedemption(bookingID string) int {
	for i, r := range c.Redemptions {
		if r.BookingID == bookingID {
			return i
		}
	}
	return -1
}
