package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

type SessionRepository struct {
	mu    sync.RWMutex
	items map[string]onboarding.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{items: make(map[string]onboarding.Session)}
}

func (r *SessionRepository) GetByUserID(_ context.Context, userID string) (onboarding.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[userID]
	if !ok {
		return onboarding.Session{}, false, nil
	}
	return item.Clone(), true, nil
}

func (r *SessionRepository) Save(_ context.Context, session onboarding.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[session.UserID] = session.Clone()
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, userID)
	return nil
}
