// Package tui is a terminal front end for the onboarding wizard. It drives a
// remote session through the onboarding HTTP API and renders one step at a time.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/riskibarqy/learnhub-onboarding/external/onboardapi"
)

const (
	totalSteps         = 10
	stepProfilePicture = 9
	stepConfirmPicture = 10
	defaultCallTimeout = 30 * time.Second

	fieldDateOfBirth    = "dateOfBirth"
	fieldProfilePicture = "profilePicture"
)

// Backend is the slice of the onboarding API the terminal client uses.
type Backend interface {
	Start(ctx context.Context, initialStep int) (onboardapi.Session, error)
	Options(ctx context.Context) ([]onboardapi.FieldOptions, error)
	Advance(ctx context.Context) (onboardapi.Session, error)
	Skip(ctx context.Context) (onboardapi.Session, error)
	Back(ctx context.Context) (onboardapi.Session, error)
	Confirm(ctx context.Context) (onboardapi.Session, error)
	DismissPopup(ctx context.Context) (onboardapi.Session, error)
	SetField(ctx context.Context, field, value string) (onboardapi.Session, error)
	SetDateOfBirth(ctx context.Context, dob time.Time) (onboardapi.Session, error)
	UploadProfileImage(ctx context.Context, path string) (onboardapi.Session, error)
}

type Options struct {
	InitialStep int
	CallTimeout time.Duration
}

type sessionMsg struct {
	session onboardapi.Session
	err     error
}

type optionsMsg struct {
	options []onboardapi.FieldOptions
	err     error
}

type Model struct {
	backend     Backend
	ctx         context.Context
	timeout     time.Duration
	initialStep int

	keys      keyMap
	help      help.Model
	spinner   spinner.Model
	progress  progress.Model
	dateInput textinput.Model
	pathInput textinput.Model

	session      onboardapi.Session
	started      bool
	options      map[string]onboardapi.FieldOptions
	dropdownOpen bool
	cursor       int
	busy         bool
	err          error
	completed    bool
}

func New(ctx context.Context, backend Backend, opts Options) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	dateInput := textinput.New()
	dateInput.Placeholder = "YYYY-MM-DD"
	dateInput.CharLimit = len(onboardapi.DateLayout)
	dateInput.Width = 12

	pathInput := textinput.New()
	pathInput.Placeholder = "/path/to/photo.jpg"
	pathInput.Width = 48

	return Model{
		backend:     backend,
		ctx:         ctx,
		timeout:     timeout,
		initialStep: opts.InitialStep,
		keys:        defaultKeyMap(),
		help:        help.New(),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		dateInput:   dateInput,
		pathInput:   pathInput,
		options:     make(map[string]onboardapi.FieldOptions),
		busy:        true,
	}
}

// Completed reports whether the user accepted the terminal dialog.
func (m Model) Completed() bool {
	return m.completed
}

func (m Model) Init() tea.Cmd {
	backend, initialStep := m.backend, m.initialStep
	return tea.Batch(
		m.spinner.Tick,
		m.call(func(ctx context.Context) (onboardapi.Session, error) {
			return backend.Start(ctx, initialStep)
		}),
		m.loadOptions(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if !m.busy && m.started {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case optionsMsg:
		if msg.err == nil {
			for _, fo := range msg.options {
				m.options[fo.Field] = fo
			}
		}
		return m, nil

	case sessionMsg:
		return m.applySession(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) applySession(msg sessionMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}

	previousStep := m.session.CurrentStep
	m.session = msg.session
	m.started = true
	m.err = nil

	if m.session.Phase == onboardapi.PhaseCompleted {
		m.completed = true
		return m, tea.Quit
	}
	if m.session.CurrentStep != previousStep {
		m.dropdownOpen = false
		m.cursor = 0
	}

	switch m.session.StepField {
	case fieldDateOfBirth:
		m.pathInput.Blur()
		if m.dateInput.Value() == "" || m.session.CurrentStep != previousStep {
			m.dateInput.SetValue(m.session.Form.DateOfBirth)
		}
		return m, m.dateInput.Focus()
	case fieldProfilePicture:
		m.dateInput.Blur()
		if m.session.CurrentStep == stepProfilePicture {
			if m.session.CurrentStep != previousStep {
				m.pathInput.SetValue("")
			}
			return m, m.pathInput.Focus()
		}
		m.pathInput.Blur()
	default:
		m.dateInput.Blur()
		m.pathInput.Blur()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.busy || !m.started {
		return m, nil
	}

	if m.session.Popup != nil {
		if key.Matches(msg, m.keys.Continue) || key.Matches(msg, m.keys.Back) {
			return m.run(m.backend.DismissPopup)
		}
		return m, nil
	}

	if m.session.Phase == onboardapi.PhaseTerminal {
		if key.Matches(msg, m.keys.Continue) {
			return m.run(m.backend.Confirm)
		}
		return m, nil
	}

	switch {
	case m.session.StepField == fieldDateOfBirth:
		return m.handleDateKey(msg)
	case m.session.CurrentStep == stepProfilePicture:
		return m.handlePathKey(msg)
	case m.session.CurrentStep == stepConfirmPicture:
		return m.handleNavigationKey(msg)
	default:
		return m.handleDropdownKey(msg)
	}
}

func (m Model) handleNavigationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Continue):
		return m.run(m.backend.Advance)
	case key.Matches(msg, m.keys.Skip):
		return m.run(m.backend.Skip)
	case key.Matches(msg, m.keys.Back):
		return m.run(m.backend.Back)
	}
	return m, nil
}

func (m Model) handleDateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Continue) {
		if key.Matches(msg, m.keys.Skip) || key.Matches(msg, m.keys.Back) {
			return m.handleNavigationKey(msg)
		}
		var cmd tea.Cmd
		m.dateInput, cmd = m.dateInput.Update(msg)
		return m, cmd
	}

	raw := strings.TrimSpace(m.dateInput.Value())
	dob, err := time.Parse(onboardapi.DateLayout, raw)
	if err != nil {
		m.err = fmt.Errorf("enter your date of birth as YYYY-MM-DD")
		return m, nil
	}
	backend := m.backend
	changed := raw != m.session.Form.DateOfBirth
	return m.run(func(ctx context.Context) (onboardapi.Session, error) {
		if changed {
			if _, err := backend.SetDateOfBirth(ctx, dob); err != nil {
				return onboardapi.Session{}, err
			}
		}
		return backend.Advance(ctx)
	})
}

func (m Model) handlePathKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Continue) {
		if key.Matches(msg, m.keys.Skip) || key.Matches(msg, m.keys.Back) {
			return m.handleNavigationKey(msg)
		}
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}

	path := strings.TrimSpace(m.pathInput.Value())
	backend := m.backend
	return m.run(func(ctx context.Context) (onboardapi.Session, error) {
		if path != "" {
			s, err := backend.UploadProfileImage(ctx, path)
			if err != nil || s.Popup != nil {
				return s, err
			}
		}
		return backend.Advance(ctx)
	})
}

func (m Model) handleDropdownKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choices := m.choices()

	if !m.dropdownOpen {
		if key.Matches(msg, m.keys.Toggle) {
			m.dropdownOpen = true
			m.cursor = indexOf(choices, m.session.Form.Value(m.session.StepField))
			return m, nil
		}
		return m.handleNavigationKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(choices)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Toggle):
		m.dropdownOpen = false
	case key.Matches(msg, m.keys.Continue):
		m.dropdownOpen = false
		if len(choices) == 0 {
			return m, nil
		}
		field, value, backend := m.session.StepField, choices[m.cursor], m.backend
		return m.run(func(ctx context.Context) (onboardapi.Session, error) {
			return backend.SetField(ctx, field, value)
		})
	}
	return m, nil
}

func (m Model) choices() []string {
	return m.options[m.session.StepField].Options
}

// run starts one backend call. The wizard accepts a single call at a time.
func (m Model) run(fn func(ctx context.Context) (onboardapi.Session, error)) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.err = nil
	return m, tea.Batch(m.spinner.Tick, m.call(fn))
}

func (m Model) call(fn func(ctx context.Context) (onboardapi.Session, error)) tea.Cmd {
	parent, timeout := m.ctx, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		s, err := fn(ctx)
		return sessionMsg{session: s, err: err}
	}
}

func (m Model) loadOptions() tea.Cmd {
	parent, timeout, backend := m.ctx, m.timeout, m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		opts, err := backend.Options(ctx)
		return optionsMsg{options: opts, err: err}
	}
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if strings.EqualFold(v, target) {
			return i
		}
	}
	return 0
}
