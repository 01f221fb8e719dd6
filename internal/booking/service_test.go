package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/giftcode"
	"github.com/daybook-io/daybook/internal/repository"
)

// MockBookingRepository is a mock implementation of repository.BookingRepository
type MockBookingRepository struct {
	CreateFunc                func(ctx context.Context, booking *domain.Booking) error
	GetByIDFunc               func(ctx context.Context, id string) (*domain.Booking, error)
	GetByPaymentSessionIDFunc func(ctx context.Context, paymentSessionID string) (*domain.Booking, error)
	UpdateFunc                func(ctx context.Context, booking *domain.Booking) error
	DeleteFunc                func(ctx context.Context, id string) error
	ListExpiredFunc           func(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error)
	ListByEmailFunc           func(ctx context.Context, email string, limit, offset int) ([]*domain.Booking, error)
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) GetByPaymentSessionID(ctx context.Context, paymentSessionID string) (*domain.Booking, error) {
	if m.GetByPaymentSessionIDFunc != nil {
		return m.GetByPaymentSessionIDFunc(ctx, paymentSessionID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockBookingRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Booking, error) {
	if m.ListExpiredFunc != nil {
		return m.ListExpiredFunc(ctx, before, limit)
	}
	return nil, nil
}

func (m *MockBookingRepository) ListByEmail(ctx context.Context, email string, limit, offset int) ([]*domain.Booking, error) {
	if m.ListByEmailFunc != nil {
		return m.ListByEmailFunc(ctx, email, limit, offset)
	}
	return nil, nil
}

// MockCodeRepository covers the code lookups the lifecycle service makes
type MockCodeRepository struct {
	GetByCodeFunc func(ctx context.Context, code string) (*domain.Code, error)
}

func (m *MockCodeRepository) Create(ctx context.Context, code *domain.Code) error { return nil }
func (m *MockCodeRepository) GetByCode(ctx context.Context, code string) (*domain.Code, error) {
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, code)
	}
	return nil, domain.ErrCodeNotFound
}
func (m *MockCodeRepository) Update(ctx context.Context, code *domain.Code) error { return nil }
func (m *MockCodeRepository) ReserveBalance(ctx context.Context, code string, amountCents int64) (bool, error) {
	return true, nil
}
func (m *MockCodeRepository) ReleaseBalance(ctx context.Context, code string, amountCents int64) error {
	return nil
}
func (m *MockCodeRepository) ReserveUse(ctx context.Context, code string) (bool, error) {
	return true, nil
}
func (m *MockCodeRepository) ReleaseUse(ctx context.Context, code string) error { return nil }

type mockStore struct {
	bookings *MockBookingRepository
	codes    *MockCodeRepository
}

func (s *mockStore) Activities() repository.ActivityRepository { return nil }
func (s *mockStore) Sessions() repository.SessionRepository    { return nil }
func (s *mockStore) Bookings() repository.BookingRepository    { return s.bookings }
func (s *mockStore) Codes() repository.CodeRepository          { return s.codes }
func (s *mockStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

// MockLedger records capacity calls
type MockLedger struct {
	mu       sync.Mutex
	Reserved []int
	Released []int

	ReserveFunc func(ctx context.Context, resourceIDs []string, amount int) error
}

func (m *MockLedger) Reserve(ctx context.Context, resourceIDs []string, amount int) error {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, resourceIDs, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reserved = append(m.Reserved, amount)
	return nil
}

func (m *MockLedger) Release(ctx context.Context, resourceIDs []string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released = append(m.Released, amount)
}

// MockCodeService is a mock implementation of giftcode.Service
type MockCodeService struct {
	RevertCodeUsageFunc func(ctx context.Context, codeStr, bookingID string) error
	ReleaseCodeFunc     func(ctx context.Context, code *domain.Code, amountCents int64)
}

func (m *MockCodeService) ValidateCode(ctx context.Context, codeStr string) (*domain.Code, error) {
	return nil, domain.ErrCodeNotFound
}
func (m *MockCodeService) CalculateDiscount(code *domain.Code, totalCents int64) giftcode.Quote {
	return giftcode.Quote{}
}
func (m *MockCodeService) ReserveCode(ctx context.Context, code *domain.Code, amountCents int64) error {
	return nil
}
func (m *MockCodeService) ReleaseCode(ctx context.Context, code *domain.Code, amountCents int64) {
	if m.ReleaseCodeFunc != nil {
		m.ReleaseCodeFunc(ctx, code, amountCents)
	}
}
func (m *MockCodeService) ApplyCode(ctx context.Context, codeStr, bookingID string, amountCents int64, skip bool) error {
	return nil
}
func (m *MockCodeService) ApplyCodeIn(ctx context.Context, codes repository.CodeRepository, codeStr, bookingID string, amountCents int64, skip bool) error {
	return nil
}
func (m *MockCodeService) RevertCodeUsage(ctx context.Context, codeStr, bookingID string) error {
	if m.RevertCodeUsageFunc != nil {
		return m.RevertCodeUsageFunc(ctx, codeStr, bookingID)
	}
	return nil
}
func (m *MockCodeService) CreatePendingCertificate(ctx context.Context, valueCents int64, currency string) (*domain.Code, error) {
	return nil, nil
}
func (m *MockCodeService) ActivateCertificate(ctx context.Context, codeStr string) (*domain.Code, error) {
	return nil, nil
}

var _ giftcode.Service = (*MockCodeService)(nil)

// MockPublisher records published events
type MockPublisher struct {
	mu     sync.Mutex
	Events []string
}

func (m *MockPublisher) PublishBookingEvent(ctx context.Context, eventType string, booking *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, eventType)
}

func (m *MockPublisher) PublishCertificateEvent(ctx context.Context, eventType string, code *domain.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, eventType)
}

func (m *MockPublisher) Close() {}

func pendingBooking() *domain.Booking {
	expiresAt := time.Now().Add(30 * time.Minute)
	return &domain.Booking{
		ID:                 "booking-1",
		ActivityID:         "activity-1",
		SessionIDs:         []string{"session-1"},
		Customer:           domain.Customer{Name: "Ada", Email: "ada@example.com"},
		NumberOfPeople:     2,
		Status:             domain.BookingStatusPending,
		PaymentStatus:      domain.PaymentStatusUnpaid,
		OriginalPriceCents: 5000,
		ChargedCents:       5000,
		ExpiresAt:          &expiresAt,
	}
}

func TestConfirmBooking(t *testing.T) {
	t.Run("pending booking confirms and publishes", func(t *testing.T) {
		b := pendingBooking()
		updated := false
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
			UpdateFunc: func(ctx context.Context, booking *domain.Booking) error {
				updated = true
				return nil
			},
		}
		capacity := &MockLedger{}
		publisher := &MockPublisher{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, capacity, &MockCodeService{}, publisher, nil)

		got, err := svc.ConfirmBooking(context.Background(), "booking-1", "cs_123")
		if err != nil {
			t.Fatalf("ConfirmBooking() unexpected error = %v", err)
		}
		if got.Status != domain.BookingStatusConfirmed || !got.IsPaid() {
			t.Errorf("ConfirmBooking() status = %v/%v, want confirmed/paid", got.Status, got.PaymentStatus)
		}
		if !updated {
			t.Error("ConfirmBooking() should persist the transition")
		}
		// Confirmation never touches capacity
		if len(capacity.Reserved) != 0 || len(capacity.Released) != 0 {
			t.Error("ConfirmBooking() must not change capacity")
		}
		if len(publisher.Events) != 1 || publisher.Events[0] != domain.EventBookingConfirmed {
			t.Errorf("events = %v, want [%s]", publisher.Events, domain.EventBookingConfirmed)
		}
	})

	t.Run("already paid is a silent no-op", func(t *testing.T) {
		b := pendingBooking()
		b.Status = domain.BookingStatusConfirmed
		b.PaymentStatus = domain.PaymentStatusPaid
		updated := false
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
			UpdateFunc: func(ctx context.Context, booking *domain.Booking) error {
				updated = true
				return nil
			},
		}
		publisher := &MockPublisher{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, &MockLedger{}, &MockCodeService{}, publisher, nil)

		if _, err := svc.ConfirmBooking(context.Background(), "booking-1", "cs_123"); err != nil {
			t.Fatalf("ConfirmBooking() unexpected error = %v", err)
		}
		if updated {
			t.Error("duplicate confirm must not rewrite the booking")
		}
		if len(publisher.Events) != 0 {
			t.Errorf("duplicate confirm must not publish, got %v", publisher.Events)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		svc := NewService(&mockStore{bookings: &MockBookingRepository{}, codes: &MockCodeRepository{}}, &MockLedger{}, &MockCodeService{}, &MockPublisher{}, nil)

		_, err := svc.ConfirmBooking(context.Background(), "missing", "cs_123")
		if !errors.Is(err, domain.ErrBookingNotFound) {
			t.Errorf("ConfirmBooking() error = %v, want ErrBookingNotFound", err)
		}
	})
}

func TestCancelBooking(t *testing.T) {
	t.Run("cancel releases capacity and reverts promo usage", func(t *testing.T) {
		b := pendingBooking()
		b.GiftCode = "SUMMER"
		b.GiftAmountCents = 1000
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
		}
		capacity := &MockLedger{}
		reverted := ""
		codes := &MockCodeService{
			RevertCodeUsageFunc: func(ctx context.Context, codeStr, bookingID string) error {
				reverted = codeStr
				return nil
			},
		}
		publisher := &MockPublisher{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, capacity, codes, publisher, nil)

		got, err := svc.CancelBooking(context.Background(), "booking-1")
		if err != nil {
			t.Fatalf("CancelBooking() unexpected error = %v", err)
		}
		if got.Status != domain.BookingStatusCancelled {
			t.Errorf("status = %v, want cancelled", got.Status)
		}
		if len(capacity.Released) != 1 || capacity.Released[0] != 2 {
			t.Errorf("released = %v, want [2]", capacity.Released)
		}
		if reverted != "SUMMER" {
			t.Errorf("reverted code = %q, want SUMMER", reverted)
		}
		if len(publisher.Events) != 1 || publisher.Events[0] != domain.EventBookingCancelled {
			t.Errorf("events = %v, want [%s]", publisher.Events, domain.EventBookingCancelled)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		b := pendingBooking()
		b.Status = domain.BookingStatusCancelled
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
		}
		capacity := &MockLedger{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, capacity, &MockCodeService{}, &MockPublisher{}, nil)

		_, err := svc.CancelBooking(context.Background(), "booking-1")
		if !errors.Is(err, domain.ErrBookingAlreadyCancelled) {
			t.Errorf("CancelBooking() error = %v, want ErrBookingAlreadyCancelled", err)
		}
		if len(capacity.Released) != 0 {
			t.Error("failed cancel must not release capacity")
		}
	})
}

func TestUpdatePeopleCount(t *testing.T) {
	confirmed := func() *domain.Booking {
		b := pendingBooking()
		b.Status = domain.BookingStatusConfirmed
		b.PaymentStatus = domain.PaymentStatusPaid
		b.ExpiresAt = nil
		return b
	}

	t.Run("growing reserves the delta", func(t *testing.T) {
		b := confirmed()
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
		}
		capacity := &MockLedger{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, capacity, &MockCodeService{}, &MockPublisher{}, nil)

		got, err := svc.UpdatePeopleCount(context.Background(), "booking-1", 3)
		if err != nil {
			t.Fatalf("UpdatePeopleCount() unexpected error = %v", err)
		}
		if got.NumberOfPeople != 3 {
			t.Errorf("people = %d, want 3", got.NumberOfPeople)
		}
		if got.ChargedCents != 7500 {
			t.Errorf("charged = %d, want 7500", got.ChargedCents)
		}
		if len(capacity.Reserved) != 1 || capacity.Reserved[0] != 1 {
			t.Errorf("reserved = %v, want [1]", capacity.Reserved)
		}
	})

	t.Run("shrinking releases the delta", func(t *testing.T) {
		b := confirmed()
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
		}
		capacity := &MockLedger{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, capacity, &MockCodeService{}, &MockPublisher{}, nil)

		got, err := svc.UpdatePeopleCount(context.Background(), "booking-1", 1)
		if err != nil {
			t.Fatalf("UpdatePeopleCount() unexpected error = %v", err)
		}
		if got.ChargedCents != 2500 {
			t.Errorf("charged = %d, want 2500", got.ChargedCents)
		}
		if len(capacity.Released) != 1 || capacity.Released[0] != 1 {
			t.Errorf("released = %v, want [1]", capacity.Released)
		}
	})

	t.Run("unchanged count touches nothing", func(t *testing.T) {
		b := confirmed()
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
		}
		capacity := &MockLedger{}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, capacity, &MockCodeService{}, &MockPublisher{}, nil)

		if _, err := svc.UpdatePeopleCount(context.Background(), "booking-1", 2); err != nil {
			t.Fatalf("UpdatePeopleCount() unexpected error = %v", err)
		}
		if len(capacity.Reserved) != 0 || len(capacity.Released) != 0 {
			t.Error("unchanged count must not touch capacity")
		}
	})

	t.Run("pending booking rejected", func(t *testing.T) {
		b := pendingBooking()
		bookings := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
		}
		svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, &MockLedger{}, &MockCodeService{}, &MockPublisher{}, nil)

		_, err := svc.UpdatePeopleCount(context.Background(), "booking-1", 3)
		if !errors.Is(err, domain.ErrBookingNotConfirmed) {
			t.Errorf("UpdatePeopleCount() error = %v, want ErrBookingNotConfirmed", err)
		}
	})

	t.Run("zero people rejected", func(t *testing.T) {
		svc := NewService(&mockStore{bookings: &MockBookingRepository{}, codes: &MockCodeRepository{}}, &MockLedger{}, &MockCodeService{}, &MockPublisher{}, nil)

		_, err := svc.UpdatePeopleCount(context.Background(), "booking-1", 0)
		if !errors.Is(err, domain.ErrInvalidPeopleCount) {
			t.Errorf("UpdatePeopleCount() error = %v, want ErrInvalidPeopleCount", err)
		}
	})
}

func TestReleaseReservations(t *testing.T) {
	t.Run("releases capacity and reserved gift funds", func(t *testing.T) {
		b := pendingBooking()
		b.GiftCode = "GIFT-ABC"
		b.GiftAmountCents = 3000
		code := &domain.Code{Code: "GIFT-ABC", Type: domain.CodeTypeGift}
		codesRepo := &MockCodeRepository{
			GetByCodeFunc: func(ctx context.Context, c string) (*domain.Code, error) { return code, nil },
		}
		capacity := &MockLedger{}
		var releasedCents int64
		codes := &MockCodeService{
			ReleaseCodeFunc: func(ctx context.Context, code *domain.Code, amountCents int64) {
				releasedCents = amountCents
			},
		}
		svc := NewService(&mockStore{bookings: &MockBookingRepository{}, codes: codesRepo}, capacity, codes, &MockPublisher{}, nil)

		svc.ReleaseReservations(context.Background(), b)

		if len(capacity.Released) != 1 || capacity.Released[0] != 2 {
			t.Errorf("released = %v, want [2]", capacity.Released)
		}
		if releasedCents != 3000 {
			t.Errorf("released cents = %d, want 3000", releasedCents)
		}
	})

	t.Run("no code attached releases capacity only", func(t *testing.T) {
		b := pendingBooking()
		capacity := &MockLedger{}
		svc := NewService(&mockStore{bookings: &MockBookingRepository{}, codes: &MockCodeRepository{}}, capacity, &MockCodeService{}, &MockPublisher{}, nil)

		svc.ReleaseReservations(context.Background(), b)

		if len(capacity.Released) != 1 {
			t.Errorf("released = %v, want one capacity release", capacity.Released)
		}
	})
}

func TestMarkAttendanceService(t *testing.T) {
	b := pendingBooking()
	b.Status = domain.BookingStatusConfirmed
	bookings := &MockBookingRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) { return b, nil },
	}
	svc := NewService(&mockStore{bookings: bookings, codes: &MockCodeRepository{}}, &MockLedger{}, &MockCodeService{}, &MockPublisher{}, nil)

	got, err := svc.MarkAttendance(context.Background(), "booking-1", false)
	if err != nil {
		t.Fatalf("MarkAttendance() unexpected error = %v", err)
	}
	if got.Status != domain.BookingStatusNoShow {
		t.Errorf("status = %v, want no_show", got.Status)
	}
}
