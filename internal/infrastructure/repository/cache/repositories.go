package cache

import (
	"context"
	"strings"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	basecache "github.com/riskibarqy/learnhub-onboarding/internal/platform/cache"
)

// CachedProfile remembers misses as well as hits.
type CachedProfile struct {
	Value  onboarding.Profile
	Exists bool
}

// ProfileRepository caches completion profiles in front of another repository.
type ProfileRepository struct {
	next  onboarding.ProfileRepository
	cache *basecache.Store[CachedProfile]
}

func NewProfileRepository(next onboarding.ProfileRepository, cache *basecache.Store[CachedProfile]) *ProfileRepository {
	return &ProfileRepository{next: next, cache: cache}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (onboarding.Profile, bool, error) {
	cached, err := r.cache.GetOrLoad(ctx, profileKey(userID), func(ctx context.Context) (CachedProfile, error) {
		item, exists, err := r.next.GetByUserID(ctx, userID)
		if err != nil {
			return CachedProfile{}, err
		}
		return CachedProfile{Value: item, Exists: exists}, nil
	})
	if err != nil {
		return onboarding.Profile{}, false, err
	}
	return cached.Value, cached.Exists, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, profile onboarding.Profile) error {
	if err := r.next.Upsert(ctx, profile); err != nil {
		return err
	}
	r.cache.Delete(ctx, profileKey(profile.UserID))
	return nil
}

func profileKey(userID string) string {
	return "profile:user:" + strings.TrimSpace(userID)
}
