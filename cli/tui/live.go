package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/assay/session"
	"github.com/pithecene-io/assay/types"
)

// snapshotMsg delivers a session snapshot to the live model.
type snapshotMsg struct {
	snap session.Snapshot
}

// LiveModel is a Bubble Tea model for the live validation panel shown
// during assay validate --tui. Unlike the inspect and stats models it is
// fed session snapshots while the validation runs, renders inline rather
// than in the alternate screen, and leaves its final frame in the
// terminal when the validation reaches a terminal state.
type LiveModel struct {
	snap     session.Snapshot
	spin     spinner.Model
	cancel   func()
	width    int
	quitting bool
}

// NewLiveModel creates the live validation model. cancel is invoked when
// the user presses q or Ctrl+C while the validation is still running and
// may be nil.
func NewLiveModel(cancel func()) LiveModel {
	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(primaryColor)),
	)
	return LiveModel{
		spin:   spin,
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m LiveModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.snap.State.Terminal() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.snap = msg.snap
		if m.snap.State.Terminal() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.snap.State.Terminal() {
				m.quitting = true
				return m, tea.Quit
			}
			// The terminal snapshot arriving after the cancel is what
			// quits the program, so the final frame shows the cancelled
			// banner rather than a half-finished step list.
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m LiveModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Playbook Validation"))
	b.WriteString("\n\n")

	if m.snap.ValidationID != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Validation ID:"),
			ValueStyle.Render(m.snap.ValidationID)))
	}
	if m.snap.Profile != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Profile:"),
			ValueStyle.Render(string(m.snap.Profile))))
	}

	state := string(m.snap.State)
	if state == "" {
		state = "starting"
	}
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("State:"),
		StateStyle(state).Render(state)))

	if len(m.snap.Steps) > 0 {
		b.WriteString("\n")
		for _, step := range m.snap.Steps {
			b.WriteString(fmt.Sprintf("  %d. %s %s\n",
				step.Index,
				StepBadge(string(step.Action)),
				ValueStyle.Render(step.Summary)))
		}
	}

	if m.snap.State.Terminal() {
		b.WriteString("\n")
		b.WriteString(m.renderBanner())
		b.WriteString("\n")
		return b.String()
	}

	progress := m.snap.ProgressMessage
	if progress == "" {
		progress = "waiting for validation stream"
	}
	b.WriteString(fmt.Sprintf("\n%s %s\n",
		m.spin.View(),
		ValueStyle.Render(progress)))
	b.WriteString(HelpStyle.Render("Press q to cancel"))
	b.WriteString("\n")

	return b.String()
}

func (m LiveModel) renderBanner() string {
	switch m.snap.State {
	case session.StateCompleted:
		var banner string
		switch {
		case m.snap.Result != nil && m.snap.Result.Passed:
			banner = SuccessStyle.Render(
				fmt.Sprintf("✓ Validation passed (%d steps)", len(m.snap.Steps)))
		case m.snap.Result != nil && len(m.snap.Result.Issues) > 0:
			banner = ErrorStyle.Render(
				fmt.Sprintf("✗ Validation failed (%d issues)", len(m.snap.Result.Issues)))
		default:
			banner = ErrorStyle.Render("✗ Validation failed")
		}
		if truncatedResult(m.snap.Result) {
			banner += "\n" + WarningStyle.Render(
				"stream ended early; verdict synthesized from collected steps")
		}
		return banner

	case session.StateFailed:
		msg := m.snap.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		return ErrorStyle.Render("✗ Validation error: " + msg)

	case session.StateCancelled:
		return CancelledStyle.Render("Validation cancelled")

	default:
		return ""
	}
}

func truncatedResult(result *types.ValidationResult) bool {
	if result == nil || result.DebugInfo == nil {
		return false
	}
	v, ok := result.DebugInfo["truncated_stream"].(bool)
	return ok && v
}

// LivePanel couples the live model with a running Bubble Tea program so
// the validate command can feed it session updates.
type LivePanel struct {
	program *tea.Program
}

// NewLivePanel builds the live panel. cancel is forwarded to the model
// and is invoked when the user requests cancellation before the
// validation reaches a terminal state.
func NewLivePanel(cancel func()) *LivePanel {
	model := NewLiveModel(cancel)
	return &LivePanel{
		program: tea.NewProgram(model),
	}
}

// Send feeds a session snapshot into the panel. Safe for concurrent use;
// wire it as the session's OnUpdate callback. Calls made before Run
// block until the event loop starts.
func (lp *LivePanel) Send(snap session.Snapshot) {
	lp.program.Send(snapshotMsg{snap: snap})
}

// Quit stops the panel without waiting for a terminal snapshot. Used
// when the validation fails to start and no snapshot will ever arrive.
func (lp *LivePanel) Quit() {
	lp.program.Quit()
}

// Run blocks until the validation reaches a terminal state, the user
// quits, or Quit is called. The final frame stays in the terminal.
func (lp *LivePanel) Run() error {
	_, err := lp.program.Run()
	return err
}
