package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/infrastructure/repository/memory"
	onboardingmock "github.com/riskibarqy/learnhub-onboarding/internal/mocks/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/resilience"
)

type recordingJobQueue struct {
	mu    sync.Mutex
	paths []string
	delay []time.Duration
}

func (q *recordingJobQueue) Enqueue(_ context.Context, path string, _ any, delay time.Duration, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paths = append(q.paths, path)
	q.delay = append(q.delay, delay)
	return nil
}

type scriptedDeliverer struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
}

func (d *scriptedDeliverer) DeliverUserDetails(_ context.Context, userID string, _ onboarding.UserDetailsPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, userID)
	return d.errs[userID]
}

func testPatch() onboarding.UserDetailsPatch {
	id := int64(31)
	return onboarding.UserDetailsPatch{CountryID: &id}
}

func TestSyncOutbox_EnqueueSchedulesBackoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := onboardingmock.NewOutboxRepository(t)
	queue := &recordingJobQueue{}
	outbox := NewSyncOutbox(repo, nil, queue, SyncOutboxConfig{
		Backoff: resilience.BackoffConfig{Base: 5 * time.Second, Max: time.Minute, MaxAttempts: 4},
	}, nil, nil)
	outbox.now = func() time.Time { return now }
	outbox.newID = func() string { return "intent-1" }

	repo.
		On("SupersedeStep", mock.Anything, "s1", onboarding.StepCountry, now).
		Return(0, nil).
		Once()
	repo.
		On("Enqueue", mock.Anything, mock.MatchedBy(func(in onboarding.SyncIntent) bool {
			return in.ID == "intent-1" &&
				in.Status == onboarding.IntentPending &&
				in.Attempts == 1 &&
				in.NextAttemptAt.Equal(now.Add(5*time.Second))
		})).
		Return(nil).
		Once()

	err := outbox.Enqueue(t.Context(), onboarding.SyncIntent{SessionID: "s1", UserID: "user-1", Step: onboarding.StepCountry, Patch: testPatch()})
	require.NoError(t, err)
	require.Equal(t, []string{FlushSyncOutboxPath}, queue.paths)
	require.Equal(t, []time.Duration{5 * time.Second}, queue.delay)
}

func TestSyncOutbox_EnqueueRejectsEmptyPatch(t *testing.T) {
	t.Parallel()

	outbox := NewSyncOutbox(memory.NewOutboxRepository(), nil, nil, SyncOutboxConfig{}, nil, nil)
	err := outbox.Enqueue(t.Context(), onboarding.SyncIntent{UserID: "user-1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSyncOutbox_FlushOutcomes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := memory.NewOutboxRepository()
	errPermanent := errors.New("422 unprocessable")
	deliverer := &scriptedDeliverer{errs: map[string]error{
		"flaky":     errors.New("503"),
		"exhausted": errors.New("503"),
		"rejected":  errPermanent,
	}}
	outbox := NewSyncOutbox(repo, deliverer, nil, SyncOutboxConfig{
		Backoff:     resilience.BackoffConfig{Base: time.Second, Max: time.Minute, MaxAttempts: 3},
		Workers:     2,
		IsRetryable: func(err error) bool { return !errors.Is(err, errPermanent) },
	}, nil, nil)
	outbox.now = func() time.Time { return now }

	seed := []onboarding.SyncIntent{
		{ID: "1", UserID: "ok", Attempts: 1},
		{ID: "2", UserID: "flaky", Attempts: 1},
		{ID: "3", UserID: "exhausted", Attempts: 2},
		{ID: "4", UserID: "rejected", Attempts: 1},
	}
	for _, in := range seed {
		in.SessionID = "s1"
		in.Status = onboarding.IntentPending
		in.Patch = testPatch()
		in.NextAttemptAt = now.Add(-time.Second)
		require.NoError(t, repo.Enqueue(t.Context(), in))
	}

	result, err := outbox.Flush(t.Context())
	require.NoError(t, err)
	require.Equal(t, FlushResult{Delivered: 1, Rescheduled: 1, Abandoned: 2}, result)

	intents, err := repo.ListBySession(t.Context(), "s1")
	require.NoError(t, err)
	byID := make(map[string]onboarding.SyncIntent, len(intents))
	for _, in := range intents {
		byID[in.ID] = in
	}
	require.Equal(t, onboarding.IntentDelivered, byID["1"].Status)
	require.Equal(t, onboarding.IntentPending, byID["2"].Status)
	require.Equal(t, 2, byID["2"].Attempts)
	require.True(t, byID["2"].NextAttemptAt.Equal(now.Add(2*time.Second)), "next attempt %s", byID["2"].NextAttemptAt)
	require.Equal(t, onboarding.IntentAbandoned, byID["3"].Status)
	require.Equal(t, onboarding.IntentAbandoned, byID["4"].Status)

	again, err := outbox.Flush(t.Context())
	require.NoError(t, err)
	require.Equal(t, FlushResult{}, again, "rescheduled intent is not due yet")
}

func TestSyncOutbox_FlushSessionIgnoresSchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := memory.NewOutboxRepository()
	deliverer := &scriptedDeliverer{}
	outbox := NewSyncOutbox(repo, deliverer, nil, SyncOutboxConfig{}, nil, nil)
	outbox.now = func() time.Time { return now }

	require.NoError(t, repo.Enqueue(t.Context(), onboarding.SyncIntent{
		ID: "future", SessionID: "s1", UserID: "user-1", Status: onboarding.IntentPending,
		Patch: testPatch(), NextAttemptAt: now.Add(time.Hour), Attempts: 1,
	}))
	require.NoError(t, repo.Enqueue(t.Context(), onboarding.SyncIntent{
		ID: "other", SessionID: "s2", UserID: "user-2", Status: onboarding.IntentPending,
		Patch: testPatch(), NextAttemptAt: now.Add(-time.Hour), Attempts: 1,
	}))

	result, err := outbox.FlushSession(t.Context(), "s1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, []string{"user-1"}, deliverer.calls)
}

type patchRecorder struct {
	mu      sync.Mutex
	byUser  map[string][]int64
	failFor map[int64]error
}

func (d *patchRecorder) DeliverUserDetails(_ context.Context, userID string, patch onboarding.UserDetailsPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.byUser == nil {
		d.byUser = make(map[string][]int64)
	}
	d.byUser[userID] = append(d.byUser[userID], *patch.CountryID)
	return d.failFor[*patch.CountryID]
}

func countryPatch(id int64) onboarding.UserDetailsPatch {
	return onboarding.UserDetailsPatch{CountryID: &id}
}

func TestSyncOutbox_EnqueueSupersedesOlderIntentForStep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := memory.NewOutboxRepository()
	outbox := NewSyncOutbox(repo, nil, nil, SyncOutboxConfig{}, nil, nil)
	outbox.now = func() time.Time { return now }
	ids := []string{"first", "second", "goal"}
	outbox.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	require.NoError(t, outbox.Enqueue(t.Context(), onboarding.SyncIntent{SessionID: "s1", UserID: "user-1", Step: onboarding.StepCountry, Patch: countryPatch(1)}))
	require.NoError(t, outbox.Enqueue(t.Context(), onboarding.SyncIntent{SessionID: "s1", UserID: "user-1", Step: onboarding.StepCountry, Patch: countryPatch(2)}))
	require.NoError(t, outbox.Enqueue(t.Context(), onboarding.SyncIntent{SessionID: "s1", UserID: "user-1", Step: onboarding.StepGoal, Patch: countryPatch(3)}))

	intents, err := repo.ListBySession(t.Context(), "s1")
	require.NoError(t, err)
	status := make(map[string]onboarding.IntentStatus, len(intents))
	for _, in := range intents {
		status[in.ID] = in.Status
	}
	require.Equal(t, map[string]onboarding.IntentStatus{
		"first":  onboarding.IntentSuperseded,
		"second": onboarding.IntentPending,
		"goal":   onboarding.IntentPending,
	}, status)

	require.NoError(t, outbox.Supersede(t.Context(), "s1", onboarding.StepCountry))
	deliverer := &patchRecorder{}
	outbox.deliverer = deliverer
	result, err := outbox.FlushSession(t.Context(), "s1")
	require.NoError(t, err)
	require.Equal(t, FlushResult{Delivered: 1}, result)
	require.Equal(t, []int64{3}, deliverer.byUser["user-1"])
}

func TestSyncOutbox_FlushDeliversEachUserInCreationOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	repo := memory.NewOutboxRepository()
	deliverer := &patchRecorder{failFor: map[int64]error{2: errors.New("503")}}
	outbox := NewSyncOutbox(repo, deliverer, nil, SyncOutboxConfig{
		Backoff: resilience.BackoffConfig{Base: time.Second, Max: time.Minute, MaxAttempts: 5},
		Workers: 8,
	}, nil, nil)
	outbox.now = func() time.Time { return now }

	seed := []struct {
		id      string
		user    string
		step    onboarding.Step
		country int64
	}{
		{"a", "user-1", onboarding.StepGoal, 1},
		{"b", "user-2", onboarding.StepGoal, 10},
		{"c", "user-1", onboarding.StepCountry, 2},
		{"d", "user-1", onboarding.StepBudget, 3},
		{"e", "user-2", onboarding.StepCountry, 11},
		{"f", "user-1", onboarding.StepLanguage, 4},
	}
	for i, in := range seed {
		require.NoError(t, repo.Enqueue(t.Context(), onboarding.SyncIntent{
			ID: in.id, SessionID: "s-" + in.user, UserID: in.user, Step: in.step,
			Status: onboarding.IntentPending, Patch: countryPatch(in.country), Attempts: 1,
			NextAttemptAt: now.Add(-time.Minute), CreatedAt: now.Add(time.Duration(i-len(seed)) * time.Second),
		}))
	}

	result, err := outbox.Flush(t.Context())
	require.NoError(t, err)
	require.Equal(t, FlushResult{Delivered: 5, Rescheduled: 1}, result)
	require.Equal(t, []int64{1, 2, 3, 4}, deliverer.byUser["user-1"])
	require.Equal(t, []int64{10, 11}, deliverer.byUser["user-2"])
}

func TestTruncateError_KeepsValidUTF8(t *testing.T) {
	t.Parallel()

	msg := strings.Repeat("a", maxLastErrorBytes-1) + "é tail"
	got := truncateError(errors.New(msg))
	require.True(t, utf8.ValidString(got), "truncated message is not valid UTF-8")
	require.Equal(t, strings.Repeat("a", maxLastErrorBytes-1), got)

	short := "upstream 503"
	require.Equal(t, short, truncateError(errors.New(short)))
}
