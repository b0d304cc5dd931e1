package postgres

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestSessionRepository_GetByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "current_step", "completed_steps", "form", "open_dropdown",
		"step_error", "phase", "popup", "profile_image_url", "created_at", "updated_at",
	}).AddRow(
		"s1", "user-1", 3, []byte("{1,2}"), []byte(`{"dateOfBirth":"2001-10-18T00:00:00Z","gender":"MALE","goal":"Travel"}`), "goal",
		"", "active", nil, "", now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + sessionColumns + " FROM onboarding_sessions WHERE user_id = $1 LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(rows)

	session, ok, err := repo.GetByUserID(t.Context(), "user-1")
	if err != nil || !ok {
		t.Fatalf("get session: ok=%v err=%v", ok, err)
	}
	if session.CurrentStep != onboarding.StepGoal || session.CompletedSteps.Len() != 2 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.Form.Gender != onboarding.GenderMale || session.Form.Goal != "Travel" || session.OpenDropdown != onboarding.FieldGoal {
		t.Fatalf("unexpected form: %+v", session.Form)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionRepository_GetByUserIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .* FROM onboarding_sessions").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err := repo.GetByUserID(t.Context(), "ghost")
	if err != nil || ok {
		t.Fatalf("expected missing session, ok=%v err=%v", ok, err)
	}
}

func TestSessionRepository_SaveUpsertsByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(`INSERT INTO onboarding_sessions \(id, user_id, .*\) VALUES \(.*\) ON CONFLICT \(user_id\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(t.Context(), onboarding.Session{
		ID:          "s1",
		UserID:      "user-1",
		CurrentStep: onboarding.FirstStep,
		Phase:       onboarding.PhaseActive,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOutboxRepository_UpdateUnknownIntent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE onboarding_sync_intents SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4")).
		WithArgs("delivered", "", at, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkDelivered(t.Context(), "missing", at); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestOutboxRepository_SupersedeStepRetiresPendingOnly(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE onboarding_sync_intents SET status = $1, updated_at = $2 WHERE session_id = $3 AND step = $4 AND status = $5")).
		WithArgs("superseded", at, "s1", 2, "pending").
		WillReturnResult(sqlmock.NewResult(0, 2))

	retired, err := repo.SupersedeStep(t.Context(), "s1", onboarding.StepGender, at)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if retired != 2 {
		t.Fatalf("expected 2 retired intents, got %d", retired)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOutboxRepository_ListDueDecodesPatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "user_id", "step", "patch", "attempts", "status",
		"next_attempt_at", "last_error", "created_at", "updated_at",
	}).AddRow("i1", "s1", "user-1", 6, []byte(`{"countryId":31}`), 1, "pending", now, "503", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM onboarding_sync_intents WHERE status = $1 AND next_attempt_at <= $2 ORDER BY created_at, id LIMIT 10")).
		WithArgs("pending", now).
		WillReturnRows(rows)

	intents, err := repo.ListDue(t.Context(), now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(intents) != 1 || intents[0].Patch.CountryID == nil || *intents[0].Patch.CountryID != 31 {
		t.Fatalf("unexpected intents: %+v", intents)
	}
	if intents[0].Step != onboarding.StepCountry {
		t.Fatalf("unexpected step: %d", intents[0].Step)
	}
}
