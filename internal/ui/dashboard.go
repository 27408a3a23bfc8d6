package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"devdeck/internal/dispatch"
	"devdeck/internal/state"
)

// pollInterval is how often the model re-reads the dashboard state.
// Background workers mutate it; the UI only ever takes snapshots.
const pollInterval = 250 * time.Millisecond

// resourceInterval is how often system stats refresh.
const resourceInterval = 2 * time.Second

// Controller is what the dashboard needs from the command layer.
type Controller interface {
	Dispatch(cmd dispatch.Command) bool
	CancelActive()
	Send(text string)
}

// menuEntry is one selectable command in the left pane.
type menuEntry struct {
	label string
	cmd   dispatch.Command
}

func defaultMenu() []menuEntry {
	return []menuEntry{
		{"Compile", dispatch.Compile{}},
		{"Upload", dispatch.Upload{}},
		{"Monitor (Serial)", dispatch.MonitorSerial{}},
		{"Monitor (MQTT)", dispatch.MonitorMQTT{}},
		{"Run Tests", dispatch.Unknown{Label: "Run Tests"}},
	}
}

// keyMap defines the key bindings for the dashboard
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Cancel key.Binding
	Send   key.Binding
	Escape key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "run"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cancel"),
		),
		Send: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "send box"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Styles holds all lipgloss styles for the dashboard
type Styles struct {
	App    lipgloss.Style
	Header lipgloss.Style
	Footer lipgloss.Style

	Menu         lipgloss.Style
	MenuItem     lipgloss.Style
	MenuSelected lipgloss.Style

	StatusIdle    lipgloss.Style
	StatusRunning lipgloss.Style
	StatusError   lipgloss.Style

	MonitorBox    lipgloss.Style
	ProgressFill  lipgloss.Style
	ProgressEmpty lipgloss.Style

	LogViewport lipgloss.Style

	Help     lipgloss.Style
	HelpKey  lipgloss.Style
	HelpDesc lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	highlight := lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	success := lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}
	info := lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}

	return &Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle).
			MarginBottom(1).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Foreground(subtle).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle).
			MarginTop(1).
			Padding(0, 1),

		Menu: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1),

		MenuItem: lipgloss.NewStyle().
			Padding(0, 1),

		MenuSelected: lipgloss.NewStyle().
			Padding(0, 1).
			Background(highlight).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true),

		StatusIdle: lipgloss.NewStyle().
			Foreground(subtle),

		StatusRunning: lipgloss.NewStyle().
			Foreground(info).
			Bold(true),

		StatusError: lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true),

		MonitorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1).
			MarginTop(1),

		ProgressFill: lipgloss.NewStyle().
			Foreground(success),

		ProgressEmpty: lipgloss.NewStyle().
			Foreground(subtle),

		LogViewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1),

		Help: lipgloss.NewStyle().
			Foreground(subtle),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpDesc: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// Messages for bubbletea
type tickMsg time.Time
type resourceTickMsg time.Time
type resourceUpdateMsg ResourceStats

// Model is the main bubbletea model for the device dashboard.
type Model struct {
	device string
	dash   *state.Dashboard
	ctrl   Controller

	menu          []menuEntry
	selectedIndex int

	snap      state.Snapshot
	resources ResourceStats

	width        int
	height       int
	viewport     viewport.Model
	input        textinput.Model
	inputFocused bool
	showHelp     bool
	quitting     bool

	keys   keyMap
	styles *Styles
}

// NewModel creates the dashboard model for one device profile.
func NewModel(device string, dash *state.Dashboard, ctrl Controller) *Model {
	vp := viewport.New(80, 20)
	vp.SetContent("")
	vp.MouseWheelEnabled = true

	ti := textinput.New()
	ti.Placeholder = "type a line, enter to send"
	ti.CharLimit = 256
	ti.Width = 50

	return &Model{
		device:   device,
		dash:     dash,
		ctrl:     ctrl,
		menu:     defaultMenu(),
		viewport: vp,
		input:    ti,
		keys:     defaultKeyMap(),
		styles:   DefaultStyles(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), resourceTickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func resourceTickCmd() tea.Cmd {
	return tea.Tick(resourceInterval, func(t time.Time) tea.Msg {
		return resourceTickMsg(t)
	})
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Quit is handled first so nothing else can swallow the key.
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !m.inputFocused {
		if key.Matches(keyMsg, m.keys.Quit) {
			m.quitting = true
			m.ctrl.CancelActive()
			return m, tea.Quit
		}
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputFocused {
			return m.updateInput(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}

		case key.Matches(msg, m.keys.Down):
			if m.selectedIndex < len(m.menu)-1 {
				m.selectedIndex++
			}

		case key.Matches(msg, m.keys.Enter):
			m.ctrl.Dispatch(m.menu[m.selectedIndex].cmd)
			m.refreshSnapshot()

		case key.Matches(msg, m.keys.Cancel):
			m.ctrl.CancelActive()
			m.refreshSnapshot()

		case key.Matches(msg, m.keys.Send):
			m.inputFocused = true
			cmds = append(cmds, m.input.Focus())

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 6
		m.viewport.Height = msg.Height - 16
		if m.viewport.Height < 5 {
			m.viewport.Height = 5
		}
		m.refreshSnapshot()

	case tickMsg:
		m.refreshSnapshot()
		cmds = append(cmds, tickCmd())

	case resourceTickMsg:
		cmds = append(cmds, resourceTickCmd(), fetchResourceStats())

	case resourceUpdateMsg:
		m.resources = ResourceStats(msg)
	}

	return m, tea.Batch(cmds...)
}

// updateInput handles keys while the send box is focused.
func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if text := m.input.Value(); strings.TrimSpace(text) != "" {
			m.ctrl.Send(text)
		}
		m.input.SetValue("")
		m.refreshSnapshot()
		return m, nil
	case "esc", "tab":
		m.inputFocused = false
		m.input.Blur()
		return m, nil
	case "ctrl+c":
		m.quitting = true
		m.ctrl.CancelActive()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func fetchResourceStats() tea.Cmd {
	return func() tea.Msg {
		return resourceUpdateMsg(GetResourceStats())
	}
}

// refreshSnapshot re-reads dashboard state and syncs the log viewport.
func (m *Model) refreshSnapshot() {
	m.snap = m.dash.Snapshot()

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.snap.OutputLines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model
func (m *Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderMenu())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBox())
	b.WriteString("\n")

	vpWidth := m.width - 6
	if vpWidth < 60 {
		vpWidth = 60
	}
	m.viewport.Width = vpWidth
	b.WriteString(m.styles.LogViewport.Width(vpWidth).Render(m.viewport.View()))

	b.WriteString("\n")
	b.WriteString(m.renderSendBox())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return m.styles.App.Render(b.String())
}

func (m *Model) renderHeader() string {
	title := "devdeck: " + m.device

	status := m.snap.StatusText
	if status == "" {
		status = "Ready"
	}
	if m.resources.CPUPercent > 0 {
		status += fmt.Sprintf(" | CPU: %.1f%%", m.resources.CPUPercent)
	}
	if m.resources.MemPercent > 0 {
		status += fmt.Sprintf(" | Mem: %s/%s",
			FormatBytes(m.resources.MemoryUsed), FormatBytes(m.resources.MemoryTotal))
	}
	if m.resources.CPUTemp > 0 {
		status += fmt.Sprintf(" | Temp: %.0f°C", m.resources.CPUTemp)
	}

	headerWidth := m.width - 4
	if headerWidth < 40 {
		headerWidth = 40
	}

	padding := headerWidth - lipgloss.Width(title) - lipgloss.Width(status)
	if padding < 1 {
		padding = 1
	}

	return m.styles.Header.Width(headerWidth).Render(
		title + strings.Repeat(" ", padding) + status,
	)
}

func (m *Model) renderMenu() string {
	var items []string

	menuWidth := m.width - 6
	if menuWidth < 60 {
		menuWidth = 60
	}

	for i, entry := range m.menu {
		style := m.styles.MenuItem
		marker := "  "
		if i == m.selectedIndex {
			style = m.styles.MenuSelected
			marker = "> "
		}
		items = append(items, style.Render(marker+entry.label))
	}

	return m.styles.Menu.Width(menuWidth).Render(strings.Join(items, "\n"))
}

// renderStatusBox shows the progress bar with the current stage and
// file while a command runs.
func (m *Model) renderStatusBox() string {
	bar := m.renderProgressBar(m.snap.ProgressPercent/100, 30)

	stage := m.snap.ProgressStage
	if stage == "" {
		stage = "Idle"
	}
	text := fmt.Sprintf("%s %s", bar, stage)
	if m.snap.CurrentFile != "" {
		text += " " + m.styles.StatusIdle.Render(m.snap.CurrentFile)
	}
	if m.snap.Running {
		text += " " + m.styles.StatusRunning.Render("●")
	}

	return m.styles.MonitorBox.Render(text)
}

func (m *Model) renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := m.styles.ProgressFill.Render(strings.Repeat("█", filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("[%s] %5.1f%%", bar, progress*100)
}

func (m *Model) renderSendBox() string {
	label := "Send"
	if m.inputFocused {
		label = m.styles.StatusRunning.Render("Send")
	}
	return m.styles.MonitorBox.Render(label + ": " + m.input.View())
}

func (m *Model) renderFooter() string {
	if m.showHelp {
		return m.renderHelp()
	}

	footerWidth := m.width - 4
	if footerWidth < 40 {
		footerWidth = 40
	}

	hints := []string{
		"↑/↓ select",
		"enter run",
		"c cancel",
		"tab send",
		"? help",
		"q quit",
	}
	return m.styles.Footer.Width(footerWidth).Render(strings.Join(hints, " • "))
}

func (m *Model) renderHelp() string {
	bindings := []key.Binding{
		m.keys.Up, m.keys.Down, m.keys.Enter, m.keys.Cancel,
		m.keys.Send, m.keys.Escape, m.keys.Help, m.keys.Quit,
	}

	var b strings.Builder
	for _, binding := range bindings {
		h := binding.Help()
		b.WriteString(m.styles.HelpKey.Render(h.Key))
		b.WriteString(" ")
		b.WriteString(m.styles.HelpDesc.Render(h.Desc))
		b.WriteString("\n")
	}
	return m.styles.Help.Render(b.String())
}

// Run starts the dashboard program and blocks until it exits.
func Run(device string, dash *state.Dashboard, ctrl Controller) error {
	model := NewModel(device, dash, ctrl)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
