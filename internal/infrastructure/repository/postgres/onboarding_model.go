package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type sessionTableModel struct {
	ID              string        `db:"id"`
	UserID          string        `db:"user_id"`
	CurrentStep     int           `db:"current_step"`
	CompletedSteps  pq.Int64Array `db:"completed_steps"`
	Form            []byte        `db:"form"`
	OpenDropdown    string        `db:"open_dropdown"`
	StepError       string        `db:"step_error"`
	Phase           string        `db:"phase"`
	Popup           []byte        `db:"popup"`
	ProfileImageURL string        `db:"profile_image_url"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

type syncIntentTableModel struct {
	ID            string    `db:"id"`
	SessionID     string    `db:"session_id"`
	UserID        string    `db:"user_id"`
	Step          int       `db:"step"`
	Patch         []byte    `db:"patch"`
	Attempts      int       `db:"attempts"`
	Status        string    `db:"status"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	LastError     string    `db:"last_error"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

type profileTableModel struct {
	ID                  int64          `db:"id"`
	UserID              string         `db:"user_id"`
	DateOfBirth         sql.NullTime   `db:"date_of_birth"`
	Gender              sql.NullString `db:"gender"`
	Goal                sql.NullString `db:"goal"`
	FocusTopic          sql.NullString `db:"focus_topic"`
	EnglishLevel        sql.NullString `db:"english_level"`
	Country             sql.NullString `db:"country"`
	Language            sql.NullString `db:"language"`
	Budget              sql.NullString `db:"budget"`
	ProfileImageURL     sql.NullString `db:"profile_image_url"`
	CompletedSteps      pq.Int64Array  `db:"completed_steps"`
	OnboardingCompleted bool           `db:"onboarding_completed"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	DeletedAt           *time.Time     `db:"deleted_at"`
}

type profileInsertModel struct {
	UserID              string        `db:"user_id"`
	DateOfBirth         *time.Time    `db:"date_of_birth"`
	Gender              *string       `db:"gender"`
	Goal                *string       `db:"goal"`
	FocusTopic          *string       `db:"focus_topic"`
	EnglishLevel        *string       `db:"english_level"`
	Country             *string       `db:"country"`
	Language            *string       `db:"language"`
	Budget              *string       `db:"budget"`
	ProfileImageURL     *string       `db:"profile_image_url"`
	CompletedSteps      pq.Int64Array `db:"completed_steps"`
	OnboardingCompleted bool          `db:"onboarding_completed"`
}
