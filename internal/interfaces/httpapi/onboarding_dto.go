package httpapi

import (
	"time"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

// nextScreenDashboard tells the client where to go once onboarding is handed off.
const nextScreenDashboard = "dashboard"

type startSessionRequest struct {
	InitialStep int `json:"initial_step" validate:"omitempty,min=1,max=10"`
}

type setFieldRequest struct {
	Value string `json:"value" validate:"max=200"`
	Open  bool   `json:"open"`
}

type setDateOfBirthRequest struct {
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
}

type stepDTO struct {
	Step        int    `json:"step"`
	Field       string `json:"field"`
	Description string `json:"description"`
	BackLabel   string `json:"back_label"`
}

type fieldOptionsDTO struct {
	Field       string   `json:"field"`
	Placeholder string   `json:"placeholder"`
	Icon        string   `json:"icon"`
	Source      string   `json:"source"`
	Options     []string `json:"options"`
}

type popupDTO struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type imageDTO struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type formDTO struct {
	DateOfBirth    string    `json:"date_of_birth"`
	Gender         string    `json:"gender"`
	Goal           string    `json:"goal"`
	FocusTopic     string    `json:"focus_topic"`
	EnglishLevel   string    `json:"english_level"`
	Country        string    `json:"country"`
	Language       string    `json:"language"`
	Budget         string    `json:"budget"`
	ProfilePicture *imageDTO `json:"profile_picture,omitempty"`
}

type sessionDTO struct {
	ID              string    `json:"id"`
	CurrentStep     int       `json:"current_step"`
	CompletedSteps  []int     `json:"completed_steps"`
	Progress        float64   `json:"progress"`
	Phase           string    `json:"phase"`
	StepField       string    `json:"step_field"`
	StepDescription string    `json:"step_description"`
	BackLabel       string    `json:"back_label"`
	CanAdvance      bool      `json:"can_advance"`
	OpenDropdown    string    `json:"open_dropdown,omitempty"`
	StepError       string    `json:"step_error,omitempty"`
	Popup           *popupDTO `json:"popup,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Form            formDTO   `json:"form"`
	Next            string    `json:"next,omitempty"`
	UpdatedAtUTC    string    `json:"updated_at_utc"`
}

func stepToDTO(def onboarding.StepDefinition) stepDTO {
	return stepDTO{
		Step:        int(def.Step),
		Field:       string(def.Field),
		Description: def.Description,
		BackLabel:   def.BackLabel,
	}
}

func sessionToDTO(view usecase.SessionView) sessionDTO {
	s := view.Session
	completed := make([]int, 0, s.CompletedSteps.Len())
	for _, step := range s.CompletedSteps.Steps() {
		completed = append(completed, int(step))
	}

	out := sessionDTO{
		ID:              s.ID,
		CurrentStep:     int(s.CurrentStep),
		CompletedSteps:  completed,
		Progress:        view.Progress,
		Phase:           string(s.Phase),
		StepField:       string(view.Definition.Field),
		StepDescription: view.Definition.Description,
		BackLabel:       view.Definition.BackLabel,
		CanAdvance:      view.CanAdvance,
		OpenDropdown:    string(s.OpenDropdown),
		StepError:       s.StepError,
		ProfileImageURL: s.ProfileImageURL,
		Form:            formToDTO(s.Form),
		UpdatedAtUTC:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.Popup != nil {
		out.Popup = &popupDTO{Kind: string(s.Popup.Kind), Title: s.Popup.Title, Message: s.Popup.Message}
	}
	if s.Phase == onboarding.PhaseCompleted {
		out.Next = nextScreenDashboard
	}
	return out
}

func formToDTO(f onboarding.FormData) formDTO {
	out := formDTO{
		Gender:       string(f.Gender),
		Goal:         f.Goal,
		FocusTopic:   f.FocusTopic,
		EnglishLevel: f.EnglishLevel,
		Country:      f.Country,
		Language:     f.Language,
		Budget:       f.Budget,
	}
	if !f.DateOfBirth.IsZero() {
		out.DateOfBirth = f.DateOfBirth.Format(dateOfBirthLayout)
	}
	if f.ProfilePicture != nil {
		out.ProfilePicture = &imageDTO{Name: f.ProfilePicture.Name, Type: f.ProfilePicture.Type}
	}
	return out
}
