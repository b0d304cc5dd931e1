package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

type ProfileRepository struct {
	mu    sync.RWMutex
	items map[string]onboarding.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{items: make(map[string]onboarding.Profile)}
}

func (r *ProfileRepository) GetByUserID(_ context.Context, userID string) (onboarding.Profile, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[userID]
	return item, ok, nil
}

func (r *ProfileRepository) Upsert(_ context.Context, profile onboarding.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[profile.UserID] = profile
	return nil
}
