package ledger

import (
	"context"
	"errors"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/internal/repository"
)

// SessionBalanceStore adapts the session repository to the BalanceStore
// surface so the verify-rollback strategy can run over the same table as
// the conditional-update backend.
type SessionBalanceStore struct {
	sessions repository.SessionRepository
}

// NewSessionBalanceStore creates a balance store over session capacity
func NewSessionBalanceStore(sessions repository.SessionRepository) *SessionBalanceStore {
	return &SessionBalanceStore{sessions: sessions}
}

// GetBalance reads a session's remaining spots
func (s *SessionBalanceStore) GetBalance(ctx context.Context, id string) (int, bool, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return session.SpotsLeft(), true, nil
}

// AdjustBalance applies a delta to a session's remaining spots
func (s *SessionBalanceStore) AdjustBalance(ctx context.Context, id string, delta int) (int, error) {
	return s.sessions.AdjustSpots(ctx, id, delta)
}

var _ BalanceStore = (*SessionBalanceStore)(nil)
