package onboarding

import (
	"context"
	"time"
)

type SessionRepository interface {
	GetByUserID(ctx context.Context, userID string) (Session, bool, error)
	Save(ctx context.Context, session Session) error
	Delete(ctx context.Context, userID string) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, intent SyncIntent) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]SyncIntent, error)
	ListBySession(ctx context.Context, sessionID string) ([]SyncIntent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkAbandoned(ctx context.Context, id string, attempts int, lastErr string, at time.Time) error
	// SupersedeStep retires every pending intent of sessionID for step and
	// reports how many were retired.
	SupersedeStep(ctx context.Context, sessionID string, step Step, at time.Time) (int, error)
}

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (Profile, bool, error)
	Upsert(ctx context.Context, profile Profile) error
}
