package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	qb "github.com/riskibarqy/learnhub-onboarding/internal/platform/querybuilder"
)

type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (onboarding.Profile, bool, error) {
	query, args, err := qb.Select("*").
		From("user_onboarding_profiles").
		Where(
			qb.Eq("user_id", strings.TrimSpace(userID)),
			qb.IsNull("deleted_at"),
		).
		Limit(1).
		ToSQL()
	if err != nil {
		return onboarding.Profile{}, false, fmt.Errorf("build get onboarding profile query: %w", err)
	}

	var row profileTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return onboarding.Profile{}, false, nil
		}
		return onboarding.Profile{}, false, fmt.Errorf("get onboarding profile: %w", err)
	}

	return profileFromRow(row), true, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, profile onboarding.Profile) error {
	var dob *time.Time
	if !profile.DateOfBirth.IsZero() {
		d := profile.DateOfBirth.UTC()
		dob = &d
	}

	insertModel := profileInsertModel{
		UserID:              strings.TrimSpace(profile.UserID),
		DateOfBirth:         dob,
		Gender:              optionalString(string(profile.Gender)),
		Goal:                optionalString(profile.Goal),
		FocusTopic:          optionalString(profile.FocusTopic),
		EnglishLevel:        optionalString(profile.EnglishLevel),
		Country:             optionalString(profile.Country),
		Language:            optionalString(profile.Language),
		Budget:              optionalString(profile.Budget),
		ProfileImageURL:     optionalString(profile.ProfileImageURL),
		CompletedSteps:      pq.Int64Array(profile.CompletedSteps.Int64s()),
		OnboardingCompleted: profile.OnboardingCompleted,
	}

	query, args, err := qb.InsertModel("user_onboarding_profiles", insertModel, `ON CONFLICT (user_id) WHERE deleted_at IS NULL
DO UPDATE SET
    date_of_birth = EXCLUDED.date_of_birth,
    gender = EXCLUDED.gender,
    goal = EXCLUDED.goal,
    focus_topic = EXCLUDED.focus_topic,
    english_level = EXCLUDED.english_level,
    country = EXCLUDED.country,
    language = EXCLUDED.language,
    budget = EXCLUDED.budget,
    profile_image_url = EXCLUDED.profile_image_url,
    completed_steps = EXCLUDED.completed_steps,
    onboarding_completed = EXCLUDED.onboarding_completed,
    updated_at = NOW(),
    deleted_at = NULL`)
	if err != nil {
		return fmt.Errorf("build upsert onboarding profile query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert onboarding profile: %w", err)
	}
	return nil
}

func profileFromRow(row profileTableModel) onboarding.Profile {
	var dob time.Time
	if row.DateOfBirth.Valid {
		dob = row.DateOfBirth.Time
	}
	gender, _ := onboarding.ParseGender(row.Gender.String)

	return onboarding.Profile{
		UserID:              row.UserID,
		DateOfBirth:         dob,
		Gender:              gender,
		Goal:                strings.TrimSpace(row.Goal.String),
		FocusTopic:          strings.TrimSpace(row.FocusTopic.String),
		EnglishLevel:        strings.TrimSpace(row.EnglishLevel.String),
		Country:             strings.TrimSpace(row.Country.String),
		Language:            strings.TrimSpace(row.Language.String),
		Budget:              strings.TrimSpace(row.Budget.String),
		ProfileImageURL:     strings.TrimSpace(row.ProfileImageURL.String),
		CompletedSteps:      onboarding.StepSetFromInt64s(row.CompletedSteps),
		OnboardingCompleted: row.OnboardingCompleted,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
