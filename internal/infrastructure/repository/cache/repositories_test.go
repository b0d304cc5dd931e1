package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	onboardingmock "github.com/riskibarqy/learnhub-onboarding/internal/mocks/domain/onboarding"
	basecache "github.com/riskibarqy/learnhub-onboarding/internal/platform/cache"
)

func TestProfileRepository_CachesMissesUntilUpsert(t *testing.T) {
	t.Parallel()

	next := onboardingmock.NewProfileRepository(t)
	repo := NewProfileRepository(next, basecache.NewStore[CachedProfile](time.Minute))

	next.On("GetByUserID", mock.Anything, "user-1").Return(onboarding.Profile{}, false, nil).Once()
	for range 2 {
		_, ok, err := repo.GetByUserID(t.Context(), "user-1")
		require.NoError(t, err)
		require.False(t, ok)
	}

	profile := onboarding.Profile{UserID: "user-1", Country: "Canada", OnboardingCompleted: true}
	next.On("Upsert", mock.Anything, profile).Return(nil).Once()
	require.NoError(t, repo.Upsert(t.Context(), profile))

	next.On("GetByUserID", mock.Anything, "user-1").Return(profile, true, nil).Once()
	got, ok, err := repo.GetByUserID(t.Context(), "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Canada", got.Country)
}
