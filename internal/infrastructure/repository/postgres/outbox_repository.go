package postgres

import (
	"context"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	qb "github.com/riskibarqy/learnhub-onboarding/internal/platform/querybuilder"
)

const syncIntentColumns = "id, session_id, user_id, step, patch, attempts, status, next_attempt_at, last_error, created_at, updated_at"

type OutboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, intent onboarding.SyncIntent) error {
	patch, err := sonic.Marshal(intent.Patch)
	if err != nil {
		return fmt.Errorf("encode sync intent patch: %w", err)
	}

	row := syncIntentTableModel{
		ID:            intent.ID,
		SessionID:     intent.SessionID,
		UserID:        intent.UserID,
		Step:          int(intent.Step),
		Patch:         patch,
		Attempts:      intent.Attempts,
		Status:        string(intent.Status),
		NextAttemptAt: intent.NextAttemptAt,
		LastError:     intent.LastError,
		CreatedAt:     intent.CreatedAt,
		UpdatedAt:     intent.UpdatedAt,
	}
	query, args, err := qb.InsertModel("onboarding_sync_intents", row, "ON CONFLICT (id) DO NOTHING")
	if err != nil {
		return fmt.Errorf("build enqueue sync intent query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("enqueue sync intent: %w", err)
	}
	return nil
}

func (r *OutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]onboarding.SyncIntent, error) {
	query, args, err := qb.Select(syncIntentColumns).
		From("onboarding_sync_intents").
		Where(
			qb.Eq("status", string(onboarding.IntentPending)),
			qb.Lte("next_attempt_at", now),
		).
		OrderBy("created_at", "id").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list due sync intents query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *OutboxRepository) ListBySession(ctx context.Context, sessionID string) ([]onboarding.SyncIntent, error) {
	query, args, err := qb.Select(syncIntentColumns).
		From("onboarding_sync_intents").
		Where(qb.Eq("session_id", sessionID)).
		OrderBy("created_at", "id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list session sync intents query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *OutboxRepository) list(ctx context.Context, query string, args []any) ([]onboarding.SyncIntent, error) {
	var rows []syncIntentTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sync intents: %w", err)
	}

	out := make([]onboarding.SyncIntent, 0, len(rows))
	for _, row := range rows {
		var patch onboarding.UserDetailsPatch
		if err := sonic.Unmarshal(row.Patch, &patch); err != nil {
			return nil, fmt.Errorf("decode sync intent patch id=%s: %w", row.ID, err)
		}
		out = append(out, onboarding.SyncIntent{
			ID:            row.ID,
			SessionID:     row.SessionID,
			UserID:        row.UserID,
			Step:          onboarding.Step(row.Step),
			Patch:         patch,
			Attempts:      row.Attempts,
			Status:        onboarding.IntentStatus(row.Status),
			NextAttemptAt: row.NextAttemptAt,
			LastError:     row.LastError,
			CreatedAt:     row.CreatedAt,
			UpdatedAt:     row.UpdatedAt,
		})
	}
	return out, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, qb.Update("onboarding_sync_intents").
		Set("status", string(onboarding.IntentDelivered)).
		Set("last_error", "").
		Set("updated_at", at))
}

func (r *OutboxRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return r.update(ctx, id, qb.Update("onboarding_sync_intents").
		Set("attempts", attempts).
		Set("next_attempt_at", next).
		Set("last_error", lastErr).
		SetExpr("updated_at", "NOW()"))
}

func (r *OutboxRepository) MarkAbandoned(ctx context.Context, id string, attempts int, lastErr string, at time.Time) error {
	return r.update(ctx, id, qb.Update("onboarding_sync_intents").
		Set("status", string(onboarding.IntentAbandoned)).
		Set("attempts", attempts).
		Set("last_error", lastErr).
		Set("updated_at", at))
}

func (r *OutboxRepository) SupersedeStep(ctx context.Context, sessionID string, step onboarding.Step, at time.Time) (int, error) {
	query, args, err := qb.Update("onboarding_sync_intents").
		Set("status", string(onboarding.IntentSuperseded)).
		Set("updated_at", at).
		Where(
			qb.Eq("session_id", sessionID),
			qb.Eq("step", int(step)),
			qb.Eq("status", string(onboarding.IntentPending)),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build supersede sync intents query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("supersede sync intents session=%s step=%d: %w", sessionID, step, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("supersede sync intents rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *OutboxRepository) update(ctx context.Context, id string, builder *qb.UpdateBuilder) error {
	query, args, err := builder.Where(qb.Eq("id", id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update sync intent query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sync intent id=%s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("sync intent %s not found", id)
	}
	return nil
}
