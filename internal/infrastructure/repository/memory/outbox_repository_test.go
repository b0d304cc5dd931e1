package memory

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

func TestOutboxRepository_ListDueSkipsFutureAndSettledIntents(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	goal := int64(3)
	intents := []onboarding.SyncIntent{
		{ID: "a", SessionID: "s1", Status: onboarding.IntentPending, NextAttemptAt: now.Add(-time.Minute), CreatedAt: now.Add(-3 * time.Minute)},
		{ID: "b", SessionID: "s1", Status: onboarding.IntentPending, NextAttemptAt: now.Add(time.Minute), CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "c", SessionID: "s2", Status: onboarding.IntentPending, NextAttemptAt: now, CreatedAt: now.Add(-time.Minute), Patch: onboarding.UserDetailsPatch{GoalID: &goal}},
	}
	for _, intent := range intents {
		if err := repo.Enqueue(ctx, intent); err != nil {
			t.Fatalf("enqueue %s: %v", intent.ID, err)
		}
	}

	due, err := repo.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 || due[0].ID != "a" || due[1].ID != "c" {
		t.Fatalf("unexpected due intents: %+v", due)
	}

	if err := repo.MarkDelivered(ctx, "a", now); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := repo.MarkAbandoned(ctx, "c", 8, "gone", now); err != nil {
		t.Fatalf("mark abandoned: %v", err)
	}
	due, _ = repo.ListDue(ctx, now.Add(time.Hour), 10)
	if len(due) != 1 || due[0].ID != "b" {
		t.Fatalf("expected only b to remain due, got %+v", due)
	}

	bySession, _ := repo.ListBySession(ctx, "s1")
	if len(bySession) != 2 {
		t.Fatalf("expected 2 intents for s1, got %d", len(bySession))
	}

	if err := repo.Reschedule(ctx, "missing", 2, now, "x"); err == nil {
		t.Fatalf("expected error for unknown intent")
	}
}

func TestOutboxRepository_SupersedeStep(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	intents := []onboarding.SyncIntent{
		{ID: "old", SessionID: "s1", Step: onboarding.StepGender, Status: onboarding.IntentPending, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "sent", SessionID: "s1", Step: onboarding.StepGender, Status: onboarding.IntentDelivered, CreatedAt: now.Add(-3 * time.Minute)},
		{ID: "goal", SessionID: "s1", Step: onboarding.StepGoal, Status: onboarding.IntentPending, CreatedAt: now.Add(-time.Minute)},
		{ID: "other", SessionID: "s2", Step: onboarding.StepGender, Status: onboarding.IntentPending, CreatedAt: now},
	}
	for _, intent := range intents {
		if err := repo.Enqueue(ctx, intent); err != nil {
			t.Fatalf("enqueue %s: %v", intent.ID, err)
		}
	}

	retired, err := repo.SupersedeStep(ctx, "s1", onboarding.StepGender, now)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if retired != 1 {
		t.Fatalf("expected 1 retired intent, got %d", retired)
	}

	status := make(map[string]onboarding.IntentStatus)
	for _, session := range []string{"s1", "s2"} {
		items, _ := repo.ListBySession(ctx, session)
		for _, item := range items {
			status[item.ID] = item.Status
		}
	}
	want := map[string]onboarding.IntentStatus{
		"old":   onboarding.IntentSuperseded,
		"sent":  onboarding.IntentDelivered,
		"goal":  onboarding.IntentPending,
		"other": onboarding.IntentPending,
	}
	for id, st := range want {
		if status[id] != st {
			t.Fatalf("intent %s: expected %s, got %s", id, st, status[id])
		}
	}

	due, _ := repo.ListDue(ctx, now.Add(time.Hour), 10)
	for _, item := range due {
		if item.ID == "old" {
			t.Fatalf("superseded intent must not be due")
		}
	}
}
