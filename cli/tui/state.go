package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/seam/cli/reader"
)

// RefreshInterval is how often a live state view re-reads the target.
const RefreshInterval = time.Second

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}

type tickMsg time.Time

type refreshedMsg struct {
	data any
	err  error
}

// StateModel is a Bubble Tea model for the state view.
type StateModel struct {
	data     any
	refresh  RefreshFunc
	bar      progress.Model
	err      error
	width    int
	quitting bool
}

// NewStateModel creates a state model for a *reader.StateView or
// *reader.DirView.
func NewStateModel(data any, refresh RefreshFunc) StateModel {
	return StateModel{
		data:    data,
		refresh: refresh,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(44)),
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StateModel) reload() tea.Cmd {
	refresh := m.refresh
	return func() tea.Msg {
		data, err := refresh()
		return refreshedMsg{data: data, err: err}
	}
}

// Init implements tea.Model.
func (m StateModel) Init() tea.Cmd {
	if m.refresh == nil {
		return nil
	}
	return tick()
}

// Update implements tea.Model.
func (m StateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh) && m.refresh != nil:
			return m, m.reload()
		}

	case tickMsg:
		if m.refresh == nil {
			return m, nil
		}
		return m, m.reload()

	case refreshedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
		}
		return m, tick()
	}

	return m, nil
}

// View implements tea.Model.
func (m StateModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch data := m.data.(type) {
	case *reader.StateView:
		content = m.renderFile(data)
	case *reader.DirView:
		content = m.renderDir(data)
	default:
		content = fmt.Sprintf("Invalid data type for state: %T", m.data)
	}

	if m.err != nil {
		content += "\n" + ErrorStyle.Render("refresh failed: "+m.err.Error())
	}

	help := "Press q to quit"
	if m.refresh != nil {
		help = "Press r to refresh, q to quit"
	}
	return content + "\n" + HelpStyle.Render(help)
}

func (m StateModel) renderFile(v *reader.StateView) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Merge State"))
	b.WriteString("\n")
	b.WriteString(m.row("Target", v.Target))
	b.WriteString(m.row("State file", v.StatePath))
	b.WriteString(LabelStyle.Render("Status") + StatusStyle(v.Status).Render(v.Status) + "\n")
	b.WriteString(m.row("Resumable", fmt.Sprintf("%t", v.Resumable)))
	b.WriteString("\n")

	if v.Total > 0 {
		b.WriteString(m.bar.ViewAs(v.Progress))
		b.WriteString(MutedStyle.Render(fmt.Sprintf("  %d / %d segments", v.Position, v.Total)))
		b.WriteString("\n\n")
	}

	boxes := []string{
		renderStatBox("Position", fmt.Sprintf("%d", v.Position), highlightColor),
		renderStatBox("Flushed", FormatBytes(v.Flushed), successColor),
		renderStatBox("Output size", FormatBytes(uint64(max(v.OutputSize, 0))), sizeColor(v)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	return b.String()
}

func (m StateModel) renderDir(v *reader.DirView) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Segment Directory"))
	b.WriteString("\n")
	b.WriteString(m.row("Target", v.Target))
	b.WriteString(m.row("Extension", v.Extension))
	b.WriteString(LabelStyle.Render("Status") + StatusStyle(v.Status).Render(v.Status) + "\n")
	if len(v.Missing) > 0 {
		b.WriteString(m.row("Missing", formatIndices(v.Missing)))
	}
	b.WriteString("\n")

	if v.Total > 0 {
		b.WriteString(m.bar.ViewAs(v.Progress))
		b.WriteString(MutedStyle.Render(fmt.Sprintf("  %d / %d segments", v.Present, v.Total)))
		b.WriteString("\n\n")
	}

	boxes := []string{
		renderStatBox("Segments", fmt.Sprintf("%d", v.Present), highlightColor),
		renderStatBox("Bytes", FormatBytes(uint64(max(v.Bytes, 0))), successColor),
		renderStatBox("Highest", fmt.Sprintf("%d", v.Highest), mutedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	return b.String()
}

func (m StateModel) row(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value) + "\n"
}

// sizeColor flags an output shorter than its recorded flushed length.
func sizeColor(v *reader.StateView) lipgloss.Color {
	if v.StateValid && v.OutputSize < int64(v.Flushed) {
		return errorColor
	}
	return warningColor
}

func renderStatBox(label, value string, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

func formatIndices(indices []uint64) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return strings.Join(parts, ", ")
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunStateTUI runs the state view until the user quits.
func RunStateTUI(data any, refresh RefreshFunc) error {
	model := NewStateModel(data, refresh)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
