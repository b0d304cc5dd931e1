package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/riskibarqy/learnhub-onboarding/external/onboardapi"
)

func (m Model) View() string {
	if m.completed {
		return titleStyle.Render("Onboarding complete. Opening your dashboard...") + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("LearnHub onboarding"))
	b.WriteString("\n")

	if !m.started {
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
			b.WriteString(hintStyle.Render("ctrl+c to quit"))
		} else {
			b.WriteString(m.spinner.View() + " Starting...")
		}
		return b.String() + "\n"
	}

	b.WriteString(m.header())
	b.WriteString("\n")

	switch {
	case m.session.Popup != nil:
		b.WriteString(m.popupView(*m.session.Popup))
	case m.session.Phase == onboardapi.PhaseTerminal:
		b.WriteString(m.terminalDialogView())
	default:
		b.WriteString(questionStyle.Render(m.session.StepDescription))
		b.WriteString("\n")
		b.WriteString(m.stepBody())
		b.WriteString("\n")
		b.WriteString(m.footer())
	}

	if m.session.StepError != "" {
		b.WriteString("\n" + errorStyle.Render(m.session.StepError))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
	if m.busy {
		b.WriteString("\n" + m.spinner.View() + " Saving...")
	}
	return b.String() + "\n"
}

func (m Model) header() string {
	step := stepStyle.Render(fmt.Sprintf("Step %d of %d", m.session.CurrentStep, totalSteps))
	pct := stepStyle.Render(fmt.Sprintf("%3.0f%%", m.session.Progress*100))
	return lipgloss.JoinHorizontal(lipgloss.Center, step, "  ", m.progress.ViewAs(m.session.Progress), " ", pct)
}

func (m Model) stepBody() string {
	switch {
	case m.session.StepField == fieldDateOfBirth:
		return m.dateInput.View()
	case m.session.CurrentStep == stepProfilePicture:
		current := ""
		if m.session.Form.ProfilePicture != nil {
			current = "\n" + hintStyle.Render("Selected: ") + valueStyle.Render(m.session.Form.ProfilePicture.Name)
		}
		return m.pathInput.View() + current
	case m.session.CurrentStep == stepConfirmPicture:
		if m.session.Form.ProfilePicture == nil {
			return placeholderStyle.Render("No picture selected")
		}
		return valueStyle.Render(m.session.Form.ProfilePicture.Name)
	default:
		return m.dropdownView()
	}
}

func (m Model) dropdownView() string {
	field := m.session.StepField
	spec := m.options[field]
	value := m.session.Form.Value(field)

	closed := placeholderStyle.Render(firstNonEmpty(spec.Placeholder, "Select an option"))
	if value != "" {
		closed = valueStyle.Render(value)
	}
	if !m.dropdownOpen {
		return dropdownStyle.Render(closed + "  ▾")
	}

	choices := spec.Options
	if len(choices) == 0 {
		return dropdownStyle.Render(placeholderStyle.Render("No options available"))
	}
	lines := make([]string, 0, len(choices))
	for i, choice := range choices {
		if i == m.cursor {
			lines = append(lines, cursorStyle.Render("› "+choice))
			continue
		}
		lines = append(lines, "  "+choice)
	}
	return dropdownStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) footer() string {
	button := disabledButtonStyle.Render("Continue")
	if m.session.CanAdvance || m.session.StepField == fieldDateOfBirth {
		button = buttonStyle.Render("Continue")
	}
	back := ""
	if m.session.BackLabel != "" && m.session.CurrentStep > 1 {
		back = hintStyle.Render("‹ " + m.session.BackLabel)
	}
	help := m.help.ShortHelpView(m.keys.helpLine(m.dropdownOpen))
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Center, back, "   ", button),
		"",
		help,
	)
}

func (m Model) popupView(p onboardapi.Popup) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(p.Title),
		"",
		p.Message,
		"",
		hintStyle.Render("enter to close"),
	)
	return popupBorder(p.Kind).Render(body)
}

func (m Model) terminalDialogView() string {
	f := m.session.Form
	rows := []string{
		lipgloss.NewStyle().Bold(true).Render("You're all set!"),
		"",
		summaryRow("Date of birth", f.DateOfBirth),
		summaryRow("Gender", f.Gender),
		summaryRow("Goal", f.Goal),
		summaryRow("Focus topic", f.FocusTopic),
		summaryRow("English level", f.EnglishLevel),
		summaryRow("Country", f.Country),
		summaryRow("Language", f.Language),
		summaryRow("Budget", f.Budget),
		"",
		buttonStyle.Render("Go to Dashboard"),
	}
	return dialogStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func summaryRow(label, value string) string {
	if value == "" {
		value = placeholderStyle.Render("skipped")
	} else {
		value = valueStyle.Render(value)
	}
	return hintStyle.Render(fmt.Sprintf("%-14s", label)) + value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
