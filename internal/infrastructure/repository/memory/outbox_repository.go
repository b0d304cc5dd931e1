package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

type OutboxRepository struct {
	mu    sync.RWMutex
	items map[string]onboarding.SyncIntent
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{items: make(map[string]onboarding.SyncIntent)}
}

func (r *OutboxRepository) Enqueue(_ context.Context, intent onboarding.SyncIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[intent.ID]; exists {
		return nil
	}
	r.items[intent.ID] = intent
	return nil
}

func (r *OutboxRepository) ListDue(_ context.Context, now time.Time, limit int) ([]onboarding.SyncIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]onboarding.SyncIntent, 0)
	for _, item := range r.items {
		if item.Status == onboarding.IntentPending && !item.NextAttemptAt.After(now) {
			out = append(out, item)
		}
	}
	sortIntents(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepository) ListBySession(_ context.Context, sessionID string) ([]onboarding.SyncIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]onboarding.SyncIntent, 0)
	for _, item := range r.items {
		if item.SessionID == sessionID {
			out = append(out, item)
		}
	}
	sortIntents(out)
	return out, nil
}

func (r *OutboxRepository) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(item *onboarding.SyncIntent) {
		item.Status = onboarding.IntentDelivered
		item.LastError = ""
		item.UpdatedAt = at
	})
}

func (r *OutboxRepository) Reschedule(_ context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return r.update(id, func(item *onboarding.SyncIntent) {
		item.Attempts = attempts
		item.NextAttemptAt = next
		item.LastError = lastErr
		item.UpdatedAt = time.Now().UTC()
	})
}

func (r *OutboxRepository) MarkAbandoned(_ context.Context, id string, attempts int, lastErr string, at time.Time) error {
	return r.update(id, func(item *onboarding.SyncIntent) {
		item.Status = onboarding.IntentAbandoned
		item.Attempts = attempts
		item.LastError = lastErr
		item.UpdatedAt = at
	})
}

func (r *OutboxRepository) SupersedeStep(_ context.Context, sessionID string, step onboarding.Step, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	retired := 0
	for id, item := range r.items {
		if item.SessionID != sessionID || item.Step != step || item.Status != onboarding.IntentPending {
			continue
		}
		item.Status = onboarding.IntentSuperseded
		item.UpdatedAt = at
		r.items[id] = item
		retired++
	}
	return retired, nil
}

func (r *OutboxRepository) update(id string, fn func(item *onboarding.SyncIntent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("sync intent %s not found", id)
	}
	fn(&item)
	r.items[id] = item
	return nil
}

func sortIntents(items []onboarding.SyncIntent) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
