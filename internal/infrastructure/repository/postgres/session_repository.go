package postgres

import (
	"context"
	"fmt"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	qb "github.com/riskibarqy/learnhub-onboarding/internal/platform/querybuilder"
)

const sessionColumns = "id, user_id, current_step, completed_steps, form, open_dropdown, step_error, phase, popup, profile_image_url, created_at, updated_at"

type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) GetByUserID(ctx context.Context, userID string) (onboarding.Session, bool, error) {
	query, args, err := qb.Select(sessionColumns).
		From("onboarding_sessions").
		Where(qb.Eq("user_id", strings.TrimSpace(userID))).
		Limit(1).
		ToSQL()
	if err != nil {
		return onboarding.Session{}, false, fmt.Errorf("build get onboarding session query: %w", err)
	}

	var row sessionTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return onboarding.Session{}, false, nil
		}
		return onboarding.Session{}, false, fmt.Errorf("get onboarding session: %w", err)
	}

	session, err := sessionFromRow(row)
	if err != nil {
		return onboarding.Session{}, false, err
	}
	return session, true, nil
}

func (r *SessionRepository) Save(ctx context.Context, session onboarding.Session) error {
	row, err := sessionToRow(session)
	if err != nil {
		return err
	}

	query, args, err := qb.InsertModel("onboarding_sessions", row, `ON CONFLICT (user_id)
DO UPDATE SET
    id = EXCLUDED.id,
    current_step = EXCLUDED.current_step,
    completed_steps = EXCLUDED.completed_steps,
    form = EXCLUDED.form,
    open_dropdown = EXCLUDED.open_dropdown,
    step_error = EXCLUDED.step_error,
    phase = EXCLUDED.phase,
    popup = EXCLUDED.popup,
    profile_image_url = EXCLUDED.profile_image_url,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build save onboarding session query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save onboarding session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	query, args, err := qb.DeleteFrom("onboarding_sessions").
		Where(qb.Eq("user_id", strings.TrimSpace(userID))).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete onboarding session query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete onboarding session: %w", err)
	}
	return nil
}

func sessionToRow(session onboarding.Session) (sessionTableModel, error) {
	form, err := sonic.Marshal(session.Form)
	if err != nil {
		return sessionTableModel{}, fmt.Errorf("encode session form: %w", err)
	}
	var popup []byte
	if session.Popup != nil {
		if popup, err = sonic.Marshal(session.Popup); err != nil {
			return sessionTableModel{}, fmt.Errorf("encode session popup: %w", err)
		}
	}

	return sessionTableModel{
		ID:              session.ID,
		UserID:          session.UserID,
		CurrentStep:     int(session.CurrentStep),
		CompletedSteps:  pq.Int64Array(session.CompletedSteps.Int64s()),
		Form:            form,
		OpenDropdown:    string(session.OpenDropdown),
		StepError:       session.StepError,
		Phase:           string(session.Phase),
		Popup:           popup,
		ProfileImageURL: session.ProfileImageURL,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}, nil
}

func sessionFromRow(row sessionTableModel) (onboarding.Session, error) {
	var form onboarding.FormData
	if len(row.Form) > 0 {
		if err := sonic.Unmarshal(row.Form, &form); err != nil {
			return onboarding.Session{}, fmt.Errorf("decode session form user_id=%s: %w", row.UserID, err)
		}
	}
	var popup *onboarding.Popup
	if len(row.Popup) > 0 && string(row.Popup) != "null" {
		popup = &onboarding.Popup{}
		if err := sonic.Unmarshal(row.Popup, popup); err != nil {
			return onboarding.Session{}, fmt.Errorf("decode session popup user_id=%s: %w", row.UserID, err)
		}
	}

	return onboarding.Session{
		ID:              row.ID,
		UserID:          row.UserID,
		CurrentStep:     onboarding.Step(row.CurrentStep),
		CompletedSteps:  onboarding.StepSetFromInt64s(row.CompletedSteps),
		Form:            form,
		OpenDropdown:    onboarding.Field(row.OpenDropdown),
		StepError:       row.StepError,
		Phase:           onboarding.Phase(row.Phase),
		Popup:           popup,
		ProfileImageURL: row.ProfileImageURL,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}
