package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/assay/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_validation":
		content = m.renderInspectValidation()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectValidation() string {
	data, ok := m.data.(*reader.InspectValidationResponse)
	if !ok {
		return "Invalid data type for inspect_validation"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Validation Details"))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Validation ID:"),
		ValueStyle.Render(data.ValidationID)))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Profile:"),
		ValueStyle.Render(data.Profile)))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Day:"),
		ValueStyle.Render(data.Day)))

	verdict := verdictLabel(data.Passed)
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Verdict:"),
		StateStyle(verdict).Render(verdict)))

	if data.FinalStatus != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Final Status:"),
			ValueStyle.Render(data.FinalStatus)))
	}
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Lint Passes:"),
		ValueStyle.Render(fmt.Sprintf("%d", data.LintIterations))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Fixes Applied:"),
		ValueStyle.Render(fmt.Sprintf("%d", data.FixesApplied))))

	if data.ErrorMessage != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Error:"),
			ErrorStyle.Render(data.ErrorMessage)))
	}

	if len(data.Steps) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Steps"))
		b.WriteString("\n")
		for _, step := range data.Steps {
			b.WriteString(fmt.Sprintf("  %d. %s %s\n",
				step.Index,
				StepBadge(step.Action),
				ValueStyle.Render(step.Summary)))
		}
	}

	if data.Metrics != nil {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Stream Metrics"))
		b.WriteString("\n")
		rows := [][2]string{
			{"Lines Read", fmt.Sprintf("%d", data.Metrics.LinesRead)},
			{"Frames Parsed", fmt.Sprintf("%d", data.Metrics.FramesParsed)},
			{"Lines Skipped", fmt.Sprintf("%d", data.Metrics.LinesSkipped)},
			{"Error Frames", fmt.Sprintf("%d", data.Metrics.ErrorFrames)},
			{"Records Kept", fmt.Sprintf("%d", data.Metrics.RecordsPersisted)},
			{"Records Dropped", fmt.Sprintf("%d", data.Metrics.RecordsDropped)},
		}
		for _, row := range rows {
			b.WriteString(fmt.Sprintf("%s %s\n",
				LabelStyle.Render("  "+row[0]+":"),
				ValueStyle.Render(row[1])))
		}
	}

	return BoxStyle.Render(b.String())
}

// verdictLabel maps the tri-state verdict to display text. The labels
// double as StateStyle keys so passed renders green and failed red.
func verdictLabel(passed *bool) string {
	switch {
	case passed == nil:
		return "no result"
	case *passed:
		return "passed"
	default:
		return "failed"
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
