package onboardapi

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format of dates of birth.
const DateLayout = "2006-01-02"

const (
	PhaseActive    = "active"
	PhaseTerminal  = "terminal"
	PhaseCompleted = "completed"

	PopupSuccess = "success"
	PopupError   = "error"
)

type Step struct {
	Step        int    `json:"step"`
	Field       string `json:"field"`
	Description string `json:"description"`
	BackLabel   string `json:"back_label"`
}

type FieldOptions struct {
	Field       string   `json:"field"`
	Placeholder string   `json:"placeholder"`
	Icon        string   `json:"icon"`
	Source      string   `json:"source"`
	Options     []string `json:"options"`
}

type Popup struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Image struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Form struct {
	DateOfBirth    string `json:"date_of_birth"`
	Gender         string `json:"gender"`
	Goal           string `json:"goal"`
	FocusTopic     string `json:"focus_topic"`
	EnglishLevel   string `json:"english_level"`
	Country        string `json:"country"`
	Language       string `json:"language"`
	Budget         string `json:"budget"`
	ProfilePicture *Image `json:"profile_picture,omitempty"`
}

// Value returns the answer held by a field name as used in step_field.
func (f Form) Value(field string) string {
	switch field {
	case "dateOfBirth":
		return f.DateOfBirth
	case "gender":
		return f.Gender
	case "goal":
		return f.Goal
	case "focusTopic":
		return f.FocusTopic
	case "englishLevel":
		return f.EnglishLevel
	case "country":
		return f.Country
	case "language":
		return f.Language
	case "budget":
		return f.Budget
	case "profilePicture":
		if f.ProfilePicture != nil {
			return f.ProfilePicture.Name
		}
	}
	return ""
}

type Session struct {
	ID              string  `json:"id"`
	CurrentStep     int     `json:"current_step"`
	CompletedSteps  []int   `json:"completed_steps"`
	Progress        float64 `json:"progress"`
	Phase           string  `json:"phase"`
	StepField       string  `json:"step_field"`
	StepDescription string  `json:"step_description"`
	BackLabel       string  `json:"back_label"`
	CanAdvance      bool    `json:"can_advance"`
	OpenDropdown    string  `json:"open_dropdown,omitempty"`
	StepError       string  `json:"step_error,omitempty"`
	Popup           *Popup  `json:"popup,omitempty"`
	ProfileImageURL string  `json:"profile_image_url,omitempty"`
	Form            Form    `json:"form"`
	Next            string  `json:"next,omitempty"`
	UpdatedAtUTC    string  `json:"updated_at_utc"`
}

// DateOfBirth parses the form's date, returning the zero time when unset.
func (s Session) DateOfBirth() time.Time {
	t, err := time.Parse(DateLayout, s.Form.DateOfBirth)
	if err != nil {
		return time.Time{}
	}
	return t
}

type envelope[T any] struct {
	APIVersion string     `json:"apiVersion"`
	Data       T          `json:"data"`
	Error      *errorBody `json:"error"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Errors  []struct {
		Domain  string `json:"domain"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"errors"`
}

// APIError is a non-2xx answer from the onboarding API.
type APIError struct {
	Code    int
	Status  string
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onboarding api %d %s: %s", e.Code, e.Status, e.Message)
}

// IsReason reports whether err is an APIError with the given reason.
func IsReason(err error, reason string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Reason == reason
}

func newAPIError(httpStatus int, body *errorBody) *APIError {
	out := &APIError{Code: httpStatus, Message: fmt.Sprintf("unexpected status %d", httpStatus)}
	if body == nil {
		return out
	}
	out.Status = body.Status
	if body.Message != "" {
		out.Message = body.Message
	}
	if len(body.Errors) > 0 {
		out.Reason = body.Errors[0].Reason
	}
	return out
}
