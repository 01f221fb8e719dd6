package domain

import (
	"errors"
	"testing"
	"time"
)

func TestBookingConfirm(t *testing.T) {
	tests := []struct {
		name        string
		booking     *Booking
		wantErr     error
		wantStatus  BookingStatus
		wantPayment PaymentStatus
	}{
		{
			name: "pending booking confirms",
			booking: &Booking{
				Status:        BookingStatusPending,
				PaymentStatus: PaymentStatusUnpaid,
			},
			wantStatus:  BookingStatusConfirmed,
			wantPayment: PaymentStatusPaid,
		},
		{
			name: "already paid is a no-op",
			booking: &Booking{
				Status:        BookingStatusConfirmed,
				PaymentStatus: PaymentStatusPaid,
			},
			wantStatus:  BookingStatusConfirmed,
			wantPayment: PaymentStatusPaid,
		},
		{
			name: "cancelled booking cannot confirm",
			booking: &Booking{
				Status:        BookingStatusCancelled,
				PaymentStatus: PaymentStatusUnpaid,
			},
			wantErr: ErrBookingNotPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.booking.Confirm("cs_test_123")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Confirm() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Confirm() unexpected error = %v", err)
			}
			if tt.booking.Status != tt.wantStatus {
				t.Errorf("Confirm() status = %v, want %v", tt.booking.Status, tt.wantStatus)
			}
			if tt.booking.PaymentStatus != tt.wantPayment {
				t.Errorf("Confirm() payment status = %v, want %v", tt.booking.PaymentStatus, tt.wantPayment)
			}
		})
	}
}

func TestBookingConfirmClearsExpiration(t *testing.T) {
	expiresAt := time.Now().Add(30 * time.Minute)
	b := &Booking{
		Status:        BookingStatusPending,
		PaymentStatus: PaymentStatusUnpaid,
		ExpiresAt:     &expiresAt,
	}

	if err := b.Confirm("cs_test_123"); err != nil {
		t.Fatalf("Confirm() unexpected error = %v", err)
	}

	if b.ExpiresAt != nil {
		t.Error("Confirm() should clear ExpiresAt")
	}
	if b.ConfirmedAt == nil {
		t.Error("Confirm() should set ConfirmedAt")
	}
	if b.PaymentSessionID != "cs_test_123" {
		t.Errorf("Confirm() payment session = %v, want cs_test_123", b.PaymentSessionID)
	}
}

func TestBookingConfirmKeepsExistingSessionID(t *testing.T) {
	b := &Booking{
		Status:           BookingStatusPending,
		PaymentStatus:    PaymentStatusUnpaid,
		PaymentSessionID: "cs_original",
	}

	if err := b.Confirm(""); err != nil {
		t.Fatalf("Confirm() unexpected error = %v", err)
	}
	if b.PaymentSessionID != "cs_original" {
		t.Errorf("Confirm() payment session = %v, want cs_original", b.PaymentSessionID)
	}
}

func TestBookingCancel(t *testing.T) {
	tests := []struct {
		name    string
		status  BookingStatus
		wantErr error
	}{
		{name: "pending can cancel", status: BookingStatusPending},
		{name: "confirmed can cancel", status: BookingStatusConfirmed},
		{name: "already cancelled", status: BookingStatusCancelled, wantErr: ErrBookingAlreadyCancelled},
		{name: "attended cannot cancel", status: BookingStatusAttended, wantErr: ErrBookingNotPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Booking{Status: tt.status}
			err := b.Cancel()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Cancel() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel() unexpected error = %v", err)
			}
			if b.Status != BookingStatusCancelled {
				t.Errorf("Cancel() status = %v, want cancelled", b.Status)
			}
			if b.CancelledAt == nil {
				t.Error("Cancel() should set CancelledAt")
			}
		})
	}
}

func TestBookingMarkAttendance(t *testing.T) {
	tests := []struct {
		name       string
		status     BookingStatus
		attended   bool
		wantErr    error
		wantStatus BookingStatus
	}{
		{name: "confirmed attended", status: BookingStatusConfirmed, attended: true, wantStatus: BookingStatusAttended},
		{name: "confirmed no-show", status: BookingStatusConfirmed, attended: false, wantStatus: BookingStatusNoShow},
		{name: "no-show corrected to attended", status: BookingStatusNoShow, attended: true, wantStatus: BookingStatusAttended},
		{name: "pending cannot record attendance", status: BookingStatusPending, attended: true, wantErr: ErrBookingNotConfirmed},
		{name: "cancelled cannot record attendance", status: BookingStatusCancelled, attended: true, wantErr: ErrBookingNotConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Booking{Status: tt.status}
			err := b.MarkAttendance(tt.attended)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("MarkAttendance() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MarkAttendance() unexpected error = %v", err)
			}
			if b.Status != tt.wantStatus {
				t.Errorf("MarkAttendance() status = %v, want %v", b.Status, tt.wantStatus)
			}
		})
	}
}

func TestBookingIsExpiredAt(t *testing.T) {
	deadline := time.Now()

	tests := []struct {
		name    string
		booking *Booking
		at      time.Time
		want    bool
	}{
		{
			name:    "no deadline never expires",
			booking: &Booking{Status: BookingStatusPending},
			at:      deadline.Add(time.Hour),
			want:    false,
		},
		{
			name:    "before deadline",
			booking: &Booking{Status: BookingStatusPending, ExpiresAt: &deadline},
			at:      deadline.Add(-time.Minute),
			want:    false,
		},
		{
			name:    "after deadline",
			booking: &Booking{Status: BookingStatusPending, ExpiresAt: &deadline},
			at:      deadline.Add(time.Minute),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.booking.IsExpiredAt(tt.at); got != tt.want {
				t.Errorf("IsExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookingValidate(t *testing.T) {
	valid := func() *Booking {
		return &Booking{
			ID:                 "booking-1",
			SessionIDs:         []string{"session-1"},
			NumberOfPeople:     2,
			OriginalPriceCents: 5000,
			ChargedCents:       5000,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Booking)
		wantErr error
	}{
		{name: "valid booking", mutate: func(b *Booking) {}},
		{name: "missing id", mutate: func(b *Booking) { b.ID = " " }, wantErr: ErrMissingBookingID},
		{name: "no sessions", mutate: func(b *Booking) { b.SessionIDs = nil }, wantErr: ErrSessionNotFound},
		{name: "zero people", mutate: func(b *Booking) { b.NumberOfPeople = 0 }, wantErr: ErrInvalidPeopleCount},
		{name: "negative charge", mutate: func(b *Booking) { b.ChargedCents = -1 }, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			err := b.Validate()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}
