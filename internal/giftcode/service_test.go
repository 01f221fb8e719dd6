package giftcode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/repository"
)

// MockCodeRepository is a stateful in-memory CodeRepository
type MockCodeRepository struct {
	codes map[string]*domain.Code

	GetByCodeFunc func(ctx context.Context, codeStr string) (*domain.Code, error)
	UpdateFunc    func(ctx context.Context, code *domain.Code) error
}

func NewMockCodeRepository(codes ...*domain.Code) *MockCodeRepository {
	m := &MockCodeRepository{codes: make(map[string]*domain.Code)}
	for _, c := range codes {
		m.codes[c.Code] = c
	}
	return m
}

func (m *MockCodeRepository) Create(ctx context.Context, code *domain.Code) error {
	m.codes[code.Code] = code
	return nil
}

func (m *MockCodeRepository) GetByCode(ctx context.Context, codeStr string) (*domain.Code, error) {
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, codeStr)
	}
	code, ok := m.codes[codeStr]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	copied := *code
	return &copied, nil
}

func (m *MockCodeRepository) Update(ctx context.Context, code *domain.Code) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, code)
	}
	m.codes[code.Code] = code
	return nil
}

func (m *MockCodeRepository) ReserveBalance(ctx context.Context, codeStr string, amountCents int64) (bool, error) {
	code, ok := m.codes[codeStr]
	if !ok || code.CurrentBalanceCents < amountCents {
		return false, nil
	}
	code.CurrentBalanceCents -= amountCents
	return true, nil
}

func (m *MockCodeRepository) ReleaseBalance(ctx context.Context, codeStr string, amountCents int64) error {
	code, ok := m.codes[codeStr]
	if !ok {
		return domain.ErrCodeNotFound
	}
	code.CurrentBalanceCents += amountCents
	if code.CurrentBalanceCents > code.InitialValueCents {
		code.CurrentBalanceCents = code.InitialValueCents
	}
	return nil
}

func (m *MockCodeRepository) ReserveUse(ctx context.Context, codeStr string) (bool, error) {
	code, ok := m.codes[codeStr]
	if !ok {
		return false, nil
	}
	if code.MaxUses != nil && code.CurrentUses >= *code.MaxUses {
		return false, nil
	}
	code.CurrentUses++
	return true, nil
}

func (m *MockCodeRepository) ReleaseUse(ctx context.Context, codeStr string) error {
	code, ok := m.codes[codeStr]
	if !ok {
		return domain.ErrCodeNotFound
	}
	if code.CurrentUses > 0 {
		code.CurrentUses--
	}
	return nil
}

var _ repository.CodeRepository = (*MockCodeRepository)(nil)

// mockStore exposes only the code repository; the service touches nothing else
type mockStore struct {
	codes *MockCodeRepository
}

func (s *mockStore) Activities() repository.ActivityRepository { return nil }
func (s *mockStore) Sessions() repository.SessionRepository    { return nil }
func (s *mockStore) Bookings() repository.BookingRepository    { return nil }
func (s *mockStore) Codes() repository.CodeRepository          { return s.codes }
func (s *mockStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

func newTestService(codes ...*domain.Code) (Service, *MockCodeRepository) {
	repo := NewMockCodeRepository(codes...)
	return NewService(&mockStore{codes: repo}, nil), repo
}

func intPtr(i int) *int { return &i }

func giftCode(balance, initial int64) *domain.Code {
	return &domain.Code{
		ID:                  "code-1",
		Code:                "GIFT-ABC123",
		Type:                domain.CodeTypeGift,
		Status:              domain.CodeStatusActive,
		InitialValueCents:   initial,
		CurrentBalanceCents: balance,
	}
}

func promoCode(discountType domain.DiscountType, value int64, maxUses *int, uses int) *domain.Code {
	return &domain.Code{
		ID:            "code-2",
		Code:          "SUMMER",
		Type:          domain.CodeTypePromo,
		Status:        domain.CodeStatusActive,
		DiscountType:  discountType,
		DiscountValue: value,
		MaxUses:       maxUses,
		CurrentUses:   uses,
	}
}

func TestValidateCode(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name    string
		code    *domain.Code
		lookup  string
		wantErr error
	}{
		{
			name:   "active gift with balance",
			code:   giftCode(3000, 5000),
			lookup: "GIFT-ABC123",
		},
		{
			name:    "unknown code",
			code:    giftCode(3000, 5000),
			lookup:  "NOPE",
			wantErr: domain.ErrCodeNotFound,
		},
		{
			name:    "empty code",
			code:    giftCode(3000, 5000),
			lookup:  "  ",
			wantErr: domain.ErrMissingCode,
		},
		{
			name: "pending certificate not yet usable",
			code: func() *domain.Code {
				c := giftCode(5000, 5000)
				c.Status = domain.CodeStatusPending
				return c
			}(),
			lookup:  "GIFT-ABC123",
			wantErr: domain.ErrCodeNotActive,
		},
		{
			name: "stored expired status",
			code: func() *domain.Code {
				c := giftCode(5000, 5000)
				c.Status = domain.CodeStatusExpired
				return c
			}(),
			lookup:  "GIFT-ABC123",
			wantErr: domain.ErrCodeExpired,
		},
		{
			name: "date-expired but still marked active",
			code: func() *domain.Code {
				c := giftCode(5000, 5000)
				c.ExpiresAt = &past
				return c
			}(),
			lookup:  "GIFT-ABC123",
			wantErr: domain.ErrCodeExpired,
		},
		{
			name: "fully spent gift",
			code: func() *domain.Code {
				c := giftCode(0, 5000)
				c.Status = domain.CodeStatusRedeemed
				return c
			}(),
			lookup:  "GIFT-ABC123",
			wantErr: domain.ErrCodeRedeemed,
		},
		{
			name:    "promo at usage limit",
			code:    promoCode(domain.DiscountTypePercentage, 20, intPtr(3), 3),
			lookup:  "SUMMER",
			wantErr: domain.ErrCodeUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(tt.code)

			got, err := svc.ValidateCode(context.Background(), tt.lookup)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateCode() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateCode() unexpected error = %v", err)
			}
			if got.Code != tt.lookup {
				t.Errorf("ValidateCode() code = %v, want %v", got.Code, tt.lookup)
			}
		})
	}
}

func TestValidateCodePersistsLazyExpiration(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	code := giftCode(5000, 5000)
	code.ExpiresAt = &past

	svc, repo := newTestService(code)

	if _, err := svc.ValidateCode(context.Background(), code.Code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("ValidateCode() error = %v, want ErrCodeExpired", err)
	}

	stored := repo.codes[code.Code]
	if stored.Status != domain.CodeStatusExpired {
		t.Errorf("stored status = %v, want expired", stored.Status)
	}
}

func TestCalculateDiscount(t *testing.T) {
	svc, _ := newTestService()

	tests := []struct {
		name            string
		code            *domain.Code
		totalCents      int64
		wantDiscount    int64
		wantRemaining   int64
		wantFullyCovers bool
		wantNewBalance  *int64
	}{
		{
			name:           "gift smaller than charge",
			code:           giftCode(3000, 5000),
			totalCents:     5000,
			wantDiscount:   3000,
			wantRemaining:  2000,
			wantNewBalance: int64Ptr(0),
		},
		{
			name:            "gift covers the charge",
			code:            giftCode(5000, 5000),
			totalCents:      4000,
			wantDiscount:    4000,
			wantRemaining:   0,
			wantFullyCovers: true,
			wantNewBalance:  int64Ptr(1000),
		},
		{
			name:          "percentage promo floors the result",
			code:          promoCode(domain.DiscountTypePercentage, 20, nil, 0),
			totalCents:    1999,
			wantDiscount:  399, // 1999 * 20 / 100 truncates
			wantRemaining: 1600,
		},
		{
			name:            "fixed promo clamped at the charge",
			code:            promoCode(domain.DiscountTypeFixed, 10000, nil, 0),
			totalCents:      2500,
			wantDiscount:    2500,
			wantRemaining:   0,
			wantFullyCovers: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := svc.CalculateDiscount(tt.code, tt.totalCents)

			if quote.DiscountCents != tt.wantDiscount {
				t.Errorf("DiscountCents = %d, want %d", quote.DiscountCents, tt.wantDiscount)
			}
			if quote.RemainingToPayCents != tt.wantRemaining {
				t.Errorf("RemainingToPayCents = %d, want %d", quote.RemainingToPayCents, tt.wantRemaining)
			}
			if quote.FullyCovers != tt.wantFullyCovers {
				t.Errorf("FullyCovers = %v, want %v", quote.FullyCovers, tt.wantFullyCovers)
			}
			if tt.wantNewBalance != nil {
				if quote.NewBalanceCents == nil || *quote.NewBalanceCents != *tt.wantNewBalance {
					t.Errorf("NewBalanceCents = %v, want %d", quote.NewBalanceCents, *tt.wantNewBalance)
				}
			} else if quote.NewBalanceCents != nil {
				t.Errorf("NewBalanceCents = %v, want nil for promo", *quote.NewBalanceCents)
			}
		})
	}
}

func TestReserveCode(t *testing.T) {
	t.Run("gift reserve moves funds", func(t *testing.T) {
		code := giftCode(3000, 5000)
		svc, repo := newTestService(code)

		if err := svc.ReserveCode(context.Background(), code, 2000); err != nil {
			t.Fatalf("ReserveCode() unexpected error = %v", err)
		}
		if repo.codes[code.Code].CurrentBalanceCents != 1000 {
			t.Errorf("balance = %d, want 1000", repo.codes[code.Code].CurrentBalanceCents)
		}
	})

	t.Run("gift reserve beyond balance fails", func(t *testing.T) {
		code := giftCode(1000, 5000)
		svc, repo := newTestService(code)

		err := svc.ReserveCode(context.Background(), code, 2000)
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("ReserveCode() error = %v, want ErrInsufficientBalance", err)
		}
		if repo.codes[code.Code].CurrentBalanceCents != 1000 {
			t.Errorf("balance = %d, want 1000 untouched", repo.codes[code.Code].CurrentBalanceCents)
		}
	})

	t.Run("promo reserve takes a usage slot", func(t *testing.T) {
		code := promoCode(domain.DiscountTypePercentage, 20, intPtr(2), 1)
		svc, repo := newTestService(code)

		if err := svc.ReserveCode(context.Background(), code, 500); err != nil {
			t.Fatalf("ReserveCode() unexpected error = %v", err)
		}
		if repo.codes[code.Code].CurrentUses != 2 {
			t.Errorf("uses = %d, want 2", repo.codes[code.Code].CurrentUses)
		}

		err := svc.ReserveCode(context.Background(), code, 500)
		if !errors.Is(err, domain.ErrCodeUsageLimitReached) {
			t.Errorf("ReserveCode() at limit error = %v, want ErrCodeUsageLimitReached", err)
		}
	})

	t.Run("release undoes the reservation", func(t *testing.T) {
		code := giftCode(3000, 5000)
		svc, repo := newTestService(code)
		ctx := context.Background()

		if err := svc.ReserveCode(ctx, code, 2000); err != nil {
			t.Fatalf("ReserveCode() unexpected error = %v", err)
		}
		svc.ReleaseCode(ctx, code, 2000)

		if repo.codes[code.Code].CurrentBalanceCents != 3000 {
			t.Errorf("balance = %d, want 3000 after release", repo.codes[code.Code].CurrentBalanceCents)
		}
	})
}

func TestApplyCode(t *testing.T) {
	t.Run("gift deduction records redemption and drains to redeemed", func(t *testing.T) {
		code := giftCode(3000, 5000)
		svc, repo := newTestService(code)

		if err := svc.ApplyCode(context.Background(), code.Code, "booking-1", 3000, false); err != nil {
			t.Fatalf("ApplyCode() unexpected error = %v", err)
		}

		stored := repo.codes[code.Code]
		if stored.CurrentBalanceCents != 0 {
			t.Errorf("balance = %d, want 0", stored.CurrentBalanceCents)
		}
		if stored.Status != domain.CodeStatusRedeemed {
			t.Errorf("status = %v, want redeemed", stored.Status)
		}
		if stored.FindRedemption("booking-1") < 0 {
			t.Error("redemption record not appended")
		}
	})

	t.Run("skip deduction appends record only", func(t *testing.T) {
		// Funds already moved by ReserveCode during checkout
		code := giftCode(0, 5000)
		svc, repo := newTestService(code)

		if err := svc.ApplyCode(context.Background(), code.Code, "booking-1", 5000, true); err != nil {
			t.Fatalf("ApplyCode() unexpected error = %v", err)
		}

		stored := repo.codes[code.Code]
		if stored.CurrentBalanceCents != 0 {
			t.Errorf("balance = %d, want 0 unchanged", stored.CurrentBalanceCents)
		}
		if stored.Status != domain.CodeStatusRedeemed {
			t.Errorf("status = %v, want redeemed", stored.Status)
		}
	})

	t.Run("duplicate apply is a no-op", func(t *testing.T) {
		code := giftCode(3000, 5000)
		code.Redemptions = []domain.Redemption{{BookingID: "booking-1", AmountCents: 2000}}
		svc, repo := newTestService(code)

		if err := svc.ApplyCode(context.Background(), code.Code, "booking-1", 2000, false); err != nil {
			t.Fatalf("ApplyCode() unexpected error = %v", err)
		}

		stored := repo.codes[code.Code]
		if stored.CurrentBalanceCents != 3000 {
			t.Errorf("balance = %d, want 3000 unchanged on duplicate", stored.CurrentBalanceCents)
		}
		if len(stored.Redemptions) != 1 {
			t.Errorf("redemptions = %d, want 1", len(stored.Redemptions))
		}
	})

	t.Run("partial gift use becomes partial", func(t *testing.T) {
		code := giftCode(5000, 5000)
		svc, repo := newTestService(code)

		if err := svc.ApplyCode(context.Background(), code.Code, "booking-1", 2000, false); err != nil {
			t.Fatalf("ApplyCode() unexpected error = %v", err)
		}

		stored := repo.codes[code.Code]
		if stored.CurrentBalanceCents != 3000 {
			t.Errorf("balance = %d, want 3000", stored.CurrentBalanceCents)
		}
		if stored.Status != domain.CodeStatusPartial {
			t.Errorf("status = %v, want partial", stored.Status)
		}
	})
}

func TestRevertCodeUsage(t *testing.T) {
	t.Run("gift balances are non-refundable", func(t *testing.T) {
		code := giftCode(2000, 5000)
		code.Status = domain.CodeStatusPartial
		code.Redemptions = []domain.Redemption{{BookingID: "booking-1", AmountCents: 3000}}
		svc, repo := newTestService(code)

		if err := svc.RevertCodeUsage(context.Background(), code.Code, "booking-1"); err != nil {
			t.Fatalf("RevertCodeUsage() unexpected error = %v", err)
		}

		stored := repo.codes[code.Code]
		if stored.CurrentBalanceCents != 2000 {
			t.Errorf("balance = %d, want 2000 unchanged", stored.CurrentBalanceCents)
		}
		if len(stored.Redemptions) != 1 {
			t.Error("gift redemption audit record must be kept")
		}
	})

	t.Run("promo use comes back and record is removed", func(t *testing.T) {
		code := promoCode(domain.DiscountTypePercentage, 20, intPtr(1), 1)
		code.Status = domain.CodeStatusRedeemed
		code.Redemptions = []domain.Redemption{{BookingID: "booking-1", AmountCents: 400}}
		svc, repo := newTestService(code)

		if err := svc.RevertCodeUsage(context.Background(), code.Code, "booking-1"); err != nil {
			t.Fatalf("RevertCodeUsage() unexpected error = %v", err)
		}

		stored := repo.codes[code.Code]
		if stored.CurrentUses != 0 {
			t.Errorf("uses = %d, want 0", stored.CurrentUses)
		}
		if len(stored.Redemptions) != 0 {
			t.Errorf("redemptions = %d, want 0", len(stored.Redemptions))
		}
		if stored.Status != domain.CodeStatusActive {
			t.Errorf("status = %v, want active again", stored.Status)
		}
	})

	t.Run("no recorded redemption is a no-op", func(t *testing.T) {
		code := promoCode(domain.DiscountTypePercentage, 20, intPtr(2), 1)
		svc, repo := newTestService(code)

		if err := svc.RevertCodeUsage(context.Background(), code.Code, "booking-x"); err != nil {
			t.Fatalf("RevertCodeUsage() unexpected error = %v", err)
		}
		if repo.codes[code.Code].CurrentUses != 1 {
			t.Errorf("uses = %d, want 1 unchanged", repo.codes[code.Code].CurrentUses)
		}
	})
}

func TestCreateAndActivateCertificate(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	code, err := svc.CreatePendingCertificate(ctx, 5000, "eur")
	if err != nil {
		t.Fatalf("CreatePendingCertificate() unexpected error = %v", err)
	}
	if code.Status != domain.CodeStatusPending {
		t.Errorf("status = %v, want pending", code.Status)
	}
	if code.CurrentBalanceCents != 5000 || code.InitialValueCents != 5000 {
		t.Errorf("balance = %d/%d, want 5000/5000", code.CurrentBalanceCents, code.InitialValueCents)
	}

	// Pending certificates must not validate as redeemable
	if _, err := svc.ValidateCode(ctx, code.Code); !errors.Is(err, domain.ErrCodeNotActive) {
		t.Errorf("ValidateCode() error = %v, want ErrCodeNotActive", err)
	}

	activated, err := svc.ActivateCertificate(ctx, code.Code)
	if err != nil {
		t.Fatalf("ActivateCertificate() unexpected error = %v", err)
	}
	if activated.Status != domain.CodeStatusActive {
		t.Errorf("status = %v, want active", activated.Status)
	}

	// Duplicate webhook delivery activates again without error
	if _, err := svc.ActivateCertificate(ctx, code.Code); err != nil {
		t.Errorf("ActivateCertificate() duplicate error = %v", err)
	}

	if repo.codes[code.Code].Status != domain.CodeStatusActive {
		t.Errorf("stored status = %v, want active", repo.codes[code.Code].Status)
	}

	if _, err := svc.CreatePendingCertificate(ctx, 0, "eur"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("CreatePendingCertificate(0) error = %v, want ErrInvalidAmount", err)
	}
}

func int64Ptr(v int64) *int64 { return &v }
