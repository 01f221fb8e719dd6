package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/repository"
)

// MockSessionRepository is a stateful in-memory implementation of
// repository.SessionRepository with per-method overrides.
type MockSessionRepository struct {
	mu    sync.Mutex
	spots map[string]int

	GetByIDFunc      func(ctx context.Context, id string) (*domain.Session, error)
	ReserveSpotsFunc func(ctx context.Context, id string, amount int) (bool, error)
	ReleaseSpotsFunc func(ctx context.Context, id string, amount int) error
}

func NewMockSessionRepository(spots map[string]int) *MockSessionRepository {
	return &MockSessionRepository{spots: spots}
}

func (m *MockSessionRepository) Spots(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spots[id]
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.spots[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &domain.Session{ID: id, AvailableSpots: &value}, nil
}

func (m *MockSessionRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []*domain.Session
	for _, id := range ids {
		if value, ok := m.spots[id]; ok {
			v := value
			sessions = append(sessions, &domain.Session{ID: id, AvailableSpots: &v})
		}
	}
	return sessions, nil
}

func (m *MockSessionRepository) ListScheduledByActivity(ctx context.Context, activityID string) ([]*domain.Session, error) {
	return nil, nil
}

func (m *MockSessionRepository) ReserveSpots(ctx context.Context, id string, amount int) (bool, error) {
	if m.ReserveSpotsFunc != nil {
		return m.ReserveSpotsFunc(ctx, id, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.spots[id]
	if !ok || value < amount {
		return false, nil
	}
	m.spots[id] = value - amount
	return true, nil
}

func (m *MockSessionRepository) ReleaseSpots(ctx context.Context, id string, amount int) error {
	if m.ReleaseSpotsFunc != nil {
		return m.ReleaseSpotsFunc(ctx, id, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spots[id] += amount
	return nil
}

func (m *MockSessionRepository) AdjustSpots(ctx context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spots[id] += delta
	return m.spots[id], nil
}

var _ repository.SessionRepository = (*MockSessionRepository)(nil)

func TestPostgresLedgerReserve(t *testing.T) {
	tests := []struct {
		name      string
		spots     map[string]int
		resources []string
		amount    int
		wantErr   error
		wantSpots map[string]int
	}{
		{
			name:      "single resource success",
			spots:     map[string]int{"s1": 10},
			resources: []string{"s1"},
			amount:    3,
			wantSpots: map[string]int{"s1": 7},
		},
		{
			name:      "multi resource success",
			spots:     map[string]int{"s1": 5, "s2": 5},
			resources: []string{"s1", "s2"},
			amount:    5,
			wantSpots: map[string]int{"s1": 0, "s2": 0},
		},
		{
			name:      "insufficient on both leaves no partial decrement",
			spots:     map[string]int{"s1": 5, "s2": 5},
			resources: []string{"s1", "s2"},
			amount:    6,
			wantErr:   domain.ErrInsufficientCapacity,
			wantSpots: map[string]int{"s1": 5, "s2": 5},
		},
		{
			name:      "second resource rejects and first is compensated",
			spots:     map[string]int{"s1": 10, "s2": 1},
			resources: []string{"s1", "s2"},
			amount:    2,
			wantErr:   domain.ErrInsufficientCapacity,
			wantSpots: map[string]int{"s1": 10, "s2": 1},
		},
		{
			name:      "unknown resource",
			spots:     map[string]int{"s1": 10},
			resources: []string{"s1", "missing"},
			amount:    1,
			wantErr:   domain.ErrSessionNotFound,
			wantSpots: map[string]int{"s1": 10},
		},
		{
			name:      "zero amount rejected",
			spots:     map[string]int{"s1": 10},
			resources: []string{"s1"},
			amount:    0,
			wantErr:   domain.ErrInvalidPeopleCount,
			wantSpots: map[string]int{"s1": 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockSessionRepository(tt.spots)
			ledger := NewPostgresLedger(repo, nil)

			err := ledger.Reserve(context.Background(), tt.resources, tt.amount)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Reserve() error = %v, wantErr %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Reserve() unexpected error = %v", err)
			}

			for id, want := range tt.wantSpots {
				if got := repo.Spots(id); got != want {
					t.Errorf("spots[%s] = %d, want %d", id, got, want)
				}
			}
		})
	}
}

func TestPostgresLedgerReserveThenRelease(t *testing.T) {
	repo := NewMockSessionRepository(map[string]int{"s1": 8, "s2": 8})
	ledger := NewPostgresLedger(repo, nil)
	ctx := context.Background()

	if err := ledger.Reserve(ctx, []string{"s1", "s2"}, 3); err != nil {
		t.Fatalf("Reserve() unexpected error = %v", err)
	}
	ledger.Release(ctx, []string{"s1", "s2"}, 3)

	if repo.Spots("s1") != 8 || repo.Spots("s2") != 8 {
		t.Errorf("spots after round trip = %d/%d, want 8/8", repo.Spots("s1"), repo.Spots("s2"))
	}
}

func TestPostgresLedgerReserveErrorCompensates(t *testing.T) {
	spots := map[string]int{"s1": 10, "s2": 10}
	repo := NewMockSessionRepository(spots)
	failing := errors.New("connection reset")
	released := 0
	repo.ReserveSpotsFunc = func(ctx context.Context, id string, amount int) (bool, error) {
		if id == "s2" {
			return false, failing
		}
		return true, nil
	}
	repo.ReleaseSpotsFunc = func(ctx context.Context, id string, amount int) error {
		released += amount
		return nil
	}
	ledger := NewPostgresLedger(repo, nil)

	err := ledger.Reserve(context.Background(), []string{"s1", "s2"}, 4)
	if !errors.Is(err, failing) {
		t.Fatalf("Reserve() error = %v, want %v", err, failing)
	}
	if released != 4 {
		t.Errorf("released = %d, want 4 compensating the first resource", released)
	}
}

func TestPostgresLedgerConcurrentReserve(t *testing.T) {
	const capacity = 50
	const workers = 200

	repo := NewMockSessionRepository(map[string]int{"s1": capacity})
	ledger := NewPostgresLedger(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(ctx, []string{"s1"}, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != capacity {
		t.Errorf("succeeded = %d, want %d", succeeded, capacity)
	}
	if got := repo.Spots("s1"); got != 0 {
		t.Errorf("spots[s1] = %d, want 0", got)
	}
}
