package onboarding

import (
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// ParseGender normalizes case. Unknown values return false.
func ParseGender(v string) (Gender, bool) {
	switch Gender(strings.ToUpper(strings.TrimSpace(v))) {
	case GenderMale:
		return GenderMale, true
	case GenderFemale:
		return GenderFemale, true
	case GenderOther:
		return GenderOther, true
	default:
		return "", false
	}
}

// Field names a member of FormData.
type Field string

const (
	FieldDateOfBirth    Field = "dateOfBirth"
	FieldGender         Field = "gender"
	FieldGoal           Field = "goal"
	FieldFocusTopic     Field = "focusTopic"
	FieldEnglishLevel   Field = "englishLevel"
	FieldCountry        Field = "country"
	FieldLanguage       Field = "language"
	FieldBudget         Field = "budget"
	FieldProfilePicture Field = "profilePicture"
)

// ImageRef points at a locally picked file that has not been uploaded yet.
type ImageRef struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// FormData is the answer record carried across steps.
type FormData struct {
	DateOfBirth    time.Time `json:"dateOfBirth"`
	Gender         Gender    `json:"gender"`
	Goal           string    `json:"goal"`
	FocusTopic     string    `json:"focusTopic"`
	EnglishLevel   string    `json:"englishLevel"`
	Country        string    `json:"country"`
	Language       string    `json:"language"`
	Budget         string    `json:"budget"`
	ProfilePicture *ImageRef `json:"profilePicture,omitempty"`
}

// NewFormData returns an empty record whose date of birth defaults to now.
func NewFormData(now time.Time) FormData {
	return FormData{DateOfBirth: now}
}

// Text returns the display string held by a text-valued field.
func (f FormData) Text(field Field) string {
	switch field {
	case FieldGender:
		return string(f.Gender)
	case FieldGoal:
		return f.Goal
	case FieldFocusTopic:
		return f.FocusTopic
	case FieldEnglishLevel:
		return f.EnglishLevel
	case FieldCountry:
		return f.Country
	case FieldLanguage:
		return f.Language
	case FieldBudget:
		return f.Budget
	default:
		return ""
	}
}

// WithText sets a text-valued field. It reports false for fields that do
// not hold a display string.
func (f FormData) WithText(field Field, value string) (FormData, bool) {
	value = strings.TrimSpace(value)
	switch field {
	case FieldGender:
		if value == "" {
			f.Gender = ""
			return f, true
		}
		g, ok := ParseGender(value)
		if !ok {
			return f, false
		}
		f.Gender = g
	case FieldGoal:
		f.Goal = value
	case FieldFocusTopic:
		f.FocusTopic = value
	case FieldEnglishLevel:
		f.EnglishLevel = value
	case FieldCountry:
		f.Country = value
	case FieldLanguage:
		f.Language = value
	case FieldBudget:
		f.Budget = value
	default:
		return f, false
	}
	return f, true
}

func (f FormData) Clone() FormData {
	out := f
	if f.ProfilePicture != nil {
		pic := *f.ProfilePicture
		out.ProfilePicture = &pic
	}
	return out
}

type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UserDetailsPatch is a partial update of the remote user record.
type UserDetailsPatch struct {
	DOB          *string `json:"dob,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	GoalID       *int64  `json:"goalId,omitempty"`
	TopicID      *int64  `json:"topicId,omitempty"`
	EnglishLevel *string `json:"englishLevel,omitempty"`
	CountryID    *int64  `json:"countryId,omitempty"`
	LanguageID   *int64  `json:"languageId,omitempty"`
	BudgetID     *int64  `json:"budgetId,omitempty"`
}

func (p UserDetailsPatch) IsEmpty() bool {
	return p.DOB == nil && p.Gender == nil && p.GoalID == nil && p.TopicID == nil &&
		p.EnglishLevel == nil && p.CountryID == nil && p.LanguageID == nil && p.BudgetID == nil
}

type Phase string

const (
	PhaseActive    Phase = "active"
	PhaseTerminal  Phase = "terminal"
	PhaseCompleted Phase = "completed"
)

type PopupKind string

const (
	PopupSuccess PopupKind = "success"
	PopupError   PopupKind = "error"
)

type Popup struct {
	Kind    PopupKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Session is a persisted snapshot of one wizard.
type Session struct {
	ID              string
	UserID          string
	CurrentStep     Step
	CompletedSteps  StepSet
	Form            FormData
	OpenDropdown    Field
	StepError       string
	Phase           Phase
	Popup           *Popup
	ProfileImageURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Session) Clone() Session {
	out := s
	out.Form = s.Form.Clone()
	if s.Popup != nil {
		p := *s.Popup
		out.Popup = &p
	}
	return out
}

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentDelivered IntentStatus = "delivered"
	IntentAbandoned IntentStatus = "abandoned"
	// IntentSuperseded marks an intent replaced by a newer answer for the
	// same session step. It is never delivered.
	IntentSuperseded IntentStatus = "superseded"
)

// SyncIntent is a queued user-details write that failed its first attempt.
type SyncIntent struct {
	ID            string
	SessionID     string
	UserID        string
	Step          Step
	Patch         UserDetailsPatch
	Attempts      int
	Status        IntentStatus
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the record written when a user finishes onboarding.
type Profile struct {
	UserID              string
	DateOfBirth         time.Time
	Gender              Gender
	Goal                string
	FocusTopic          string
	EnglishLevel        string
	Country             string
	Language            string
	Budget              string
	ProfileImageURL     string
	CompletedSteps      StepSet
	OnboardingCompleted bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
