package onboarding

import (
	"errors"
	"strings"
	"time"
)

const AdultAge = 18

// UnderageMessage is shown on the date of birth step when the user is too young.
const UnderageMessage = "You must be at least 18 years old to continue"

var ErrUnderage = errors.New("user must be at least 18 years old")

// StepDefinition describes one screen of the wizard.
type StepDefinition struct {
	Step        Step
	Field       Field
	Description string
	BackLabel   string
	Valid       func(form FormData, now time.Time) bool
}

var stepTable = []StepDefinition{
	{
		Step:        StepDateOfBirth,
		Field:       FieldDateOfBirth,
		Description: "When were you born?",
		BackLabel:   "Back",
		Valid: func(form FormData, now time.Time) bool {
			return !form.DateOfBirth.IsZero() && IsAdult(form.DateOfBirth, now)
		},
	},
	textStep(StepGender, FieldGender, "What is your gender?", "Date of birth"),
	textStep(StepGoal, FieldGoal, "What is your main learning goal?", "Gender"),
	textStep(StepFocusTopic, FieldFocusTopic, "Which topic do you want to focus on?", "Goal"),
	textStep(StepEnglishLevel, FieldEnglishLevel, "How would you rate your English?", "Focus topic"),
	textStep(StepCountry, FieldCountry, "Where are you from?", "English level"),
	textStep(StepLanguage, FieldLanguage, "Which language do you speak natively?", "Country"),
	textStep(StepBudget, FieldBudget, "What is your budget per lesson?", "Language"),
	pictureStep(StepProfilePicture, "Add a profile picture", "Budget"),
	pictureStep(StepProfileConfirm, "Looking good! Confirm your profile picture", "Change picture"),
}

func textStep(step Step, field Field, description, back string) StepDefinition {
	return StepDefinition{
		Step:        step,
		Field:       field,
		Description: description,
		BackLabel:   back,
		Valid: func(form FormData, _ time.Time) bool {
			return strings.TrimSpace(form.Text(field)) != ""
		},
	}
}

func pictureStep(step Step, description, back string) StepDefinition {
	return StepDefinition{
		Step:        step,
		Field:       FieldProfilePicture,
		Description: description,
		BackLabel:   back,
		Valid: func(form FormData, _ time.Time) bool {
			return form.ProfilePicture != nil && strings.TrimSpace(form.ProfilePicture.URI) != ""
		},
	}
}

// Steps returns the ordered step table. Callers must not mutate it.
func Steps() []StepDefinition {
	return stepTable
}

// Definition returns the entry for s; ok is false when s is out of range.
func Definition(s Step) (StepDefinition, bool) {
	if !s.Valid() {
		return StepDefinition{}, false
	}
	return stepTable[int(s)-1], true
}

func IsStepValid(s Step, form FormData, now time.Time) bool {
	def, ok := Definition(s)
	if !ok {
		return false
	}
	return def.Valid(form, now)
}

// Age counts full years between dob and now. dob is a calendar date read in
// its own location; now is read in its location. The year difference drops
// by one when now falls before the birthday in now's year.
func Age(dob, now time.Time) int {
	birthYear, birthMonth, birthDay := dob.Date()
	year, month, day := now.Date()
	age := year - birthYear
	if month < birthMonth || (month == birthMonth && day < birthDay) {
		age--
	}
	return age
}

func IsAdult(dob, now time.Time) bool {
	return Age(dob, now) >= AdultAge
}
