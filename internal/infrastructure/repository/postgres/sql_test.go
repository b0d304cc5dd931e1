package postgres

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
)

func TestIsNotFound_MatchesWrapped(t *testing.T) {
	if !isNotFound(fmt.Errorf("get: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if isNotFound(fmt.Errorf("pq: relation onboarding_sessions does not exist")) {
		t.Fatalf("expected unrelated error not to match")
	}
}

func TestSessionRow_KeepsJSONColumns(t *testing.T) {
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	session := onboarding.Session{
		ID:             "4b1c7a0e-7d0a-4c55-9f59-0c4f1f3f0b1d",
		UserID:         "user-1",
		CurrentStep:    onboarding.StepProfileConfirm,
		CompletedSteps: onboarding.NewStepSet(onboarding.StepDateOfBirth, onboarding.StepCountry),
		Form: onboarding.FormData{
			DateOfBirth:    time.Date(2001, 10, 18, 0, 0, 0, 0, time.UTC),
			Gender:         onboarding.GenderFemale,
			Country:        "Canada",
			ProfilePicture: &onboarding.ImageRef{URI: "/var/media/user-1/me.png", Type: "image/png", Name: "me.png"},
		},
		Phase:     onboarding.PhaseTerminal,
		Popup:     &onboarding.Popup{Kind: onboarding.PopupSuccess, Title: "Success", Message: "done"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	row, err := sessionToRow(session)
	if err != nil {
		t.Fatalf("to row: %v", err)
	}
	if len(row.CompletedSteps) != 2 || row.CompletedSteps[0] != 1 || row.CompletedSteps[1] != 6 {
		t.Fatalf("unexpected completed steps column: %v", row.CompletedSteps)
	}

	got, err := sessionFromRow(row)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	if got.Form.ProfilePicture == nil || got.Form.ProfilePicture.Name != "me.png" {
		t.Fatalf("profile picture lost: %+v", got.Form)
	}
	if got.Popup == nil || got.Popup.Kind != onboarding.PopupSuccess {
		t.Fatalf("popup lost: %+v", got.Popup)
	}
	if !got.CompletedSteps.Has(onboarding.StepCountry) || got.CurrentStep != onboarding.StepProfileConfirm {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.Form.DateOfBirth.Equal(session.Form.DateOfBirth) {
		t.Fatalf("date of birth drifted: %s", got.Form.DateOfBirth)
	}
}

func TestSessionRow_NullPopupStaysNil(t *testing.T) {
	row, err := sessionToRow(onboarding.Session{UserID: "u", CurrentStep: onboarding.FirstStep})
	if err != nil {
		t.Fatalf("to row: %v", err)
	}
	if row.Popup != nil {
		t.Fatalf("expected NULL popup column, got %s", row.Popup)
	}
	got, err := sessionFromRow(row)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	if got.Popup != nil {
		t.Fatalf("expected nil popup")
	}
}
