// Package ui renders the chat session as a Bubble Tea terminal UI. It
// observes the protocol engine through the EventSink interface and drives it
// with slash commands.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Douniahlt/Chat-securise/internal/client"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// Mode is the screen the model is rendering.
type Mode int

const (
	ModeConnecting Mode = iota
	ModeLobby
	ModeConversation
)

// Model represents the main UI model
type Model struct {
	engine *client.Engine

	// UI components
	conversation viewport.Model
	input        textinput.Model

	// State
	mode         Mode
	lines        []line
	groups       []string
	disconnected bool

	ready        bool
	showHelp     bool
	windowWidth  int
	windowHeight int

	styles *Styles

	// Program reference for sinking events from the engine's read loop
	program *tea.Program
}

type line struct {
	when    time.Time
	sender  string
	content string
	system  bool
	isError bool
}

// Styles contains all UI styles
type Styles struct {
	BorderStyle lipgloss.Style
	InputStyle  lipgloss.Style
	ChatStyle   lipgloss.Style
	SystemStyle lipgloss.Style
	ErrorStyle  lipgloss.Style
	StatusStyle lipgloss.Style
	HelpStyle   lipgloss.Style
	GroupStyle  lipgloss.Style
}

func NewStyles() *Styles {
	return &Styles{
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00D4AA")),

		InputStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B9D")).
			Padding(0, 1),

		ChatStyle: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#FFFFFF")),

		SystemStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB74D")).
			Italic(true),

		ErrorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5252")).
			Bold(true),

		StatusStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("#16213E")).
			Foreground(lipgloss.Color("#00D4AA")).
			Padding(0, 1),

		HelpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#40C4FF")).
			Padding(1),

		GroupStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E040FB")).
			Bold(true),
	}
}

// NewModel creates the UI model and registers it as an engine sink.
func NewModel(engine *client.Engine) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message or /help..."
	input.Focus()
	input.CharLimit = 280
	input.Width = 50

	m := &Model{
		engine:       engine,
		conversation: viewport.New(80, 20),
		input:        input,
		styles:       NewStyles(),
	}
	engine.AddSink(m)
	return m
}

// SetProgram sets the program reference so engine events reach Update.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
}

func (m *Model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.conversation.Width = msg.Width - 4
		m.conversation.Height = msg.Height - 7
		m.input.Width = msg.Width - 6
		m.ready = true
		m.refreshConversation()

	case tea.KeyMsg:
		if _, cmd := m.handleKeyMsg(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case chatMsg:
		m.appendLine(line{when: time.Now(), sender: msg.sender, content: msg.content})

	case groupsMsg:
		m.groups = msg.names
		if m.mode == ModeConnecting {
			m.mode = ModeLobby
		}
		m.appendSystem(fmt.Sprintf("Groups on server: %s", strings.Join(msg.names, ", ")), false)

	case joinedMsg:
		m.mode = ModeConversation
		m.appendSystem(fmt.Sprintf("Joined group %s", msg.name), false)

	case leftMsg:
		if m.engine.ActiveGroup() == "" {
			m.mode = ModeLobby
		}
		m.appendSystem(fmt.Sprintf("Left group %s", msg.name), false)

	case errorMsg:
		m.appendSystem(describeError(msg.kind, msg.details), true)

	case disconnectedMsg:
		m.disconnected = true
		m.appendSystem("Disconnected from server", false)
		cmds = append(cmds, tea.Quit)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	m.conversation, cmd = m.conversation.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if !m.ready || m.mode == ModeConnecting {
		return "Connecting..."
	}

	main := m.conversation.View()
	if m.mode == ModeLobby {
		main = m.renderLobby()
	}

	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.styles.BorderStyle.
			Width(m.windowWidth-2).
			Height(m.windowHeight-6).
			Render(main),
		m.styles.InputStyle.
			Width(m.windowWidth-4).
			Render(m.input.View()),
		m.renderStatusBar(),
	)

	if m.showHelp {
		view = lipgloss.JoinVertical(lipgloss.Left, view, m.renderHelp())
	}
	return view
}

// renderLobby lists the groups known to the server until one is joined.
func (m *Model) renderLobby() string {
	var content strings.Builder
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("#40C4FF")).Bold(true).Underline(true)
	content.WriteString(title.Render("Groups") + "\n\n")

	if len(m.groups) == 0 {
		content.WriteString(m.styles.SystemStyle.Render("No groups yet. Create one with /add <group>"))
	} else {
		for _, name := range m.groups {
			content.WriteString(m.styles.GroupStyle.Render("  "+name) + "\n")
		}
		content.WriteString("\n" + m.styles.SystemStyle.Render("Join one with /join <group>"))
	}
	return content.String()
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.engine.Close()
		return m, tea.Quit

	case "enter":
		return m.handleSubmit()

	case "?":
		if m.input.Value() == "" {
			m.showHelp = !m.showHelp
			return m, nil
		}
	}
	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return m, nil
	}
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	if err := m.engine.SendChat(input); err != nil {
		m.appendSystem(err.Error(), true)
		return m, nil
	}
	// The message comes back through the server echo; rendering it here
	// would show it twice.
	m.input.Reset()
	return m, nil
}

func (m *Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(input, " ", 2)
	command := parts[0]
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	switch command {
	case "/add":
		if args == "" {
			m.appendSystem("Usage: /add <group>", true)
			break
		}
		if err := m.engine.AddGroup(args); err != nil {
			m.appendSystem(err.Error(), true)
		}

	case "/join":
		if args == "" {
			m.appendSystem("Usage: /join <group>", true)
			break
		}
		if err := m.engine.JoinGroup(args); err != nil {
			m.appendSystem(err.Error(), true)
		}

	case "/leave":
		name := args
		if name == "" {
			name = m.engine.ActiveGroup()
		}
		if name == "" {
			m.appendSystem("Not in any group", true)
			break
		}
		if err := m.engine.LeaveGroup(name); err != nil {
			m.appendSystem(err.Error(), true)
		}

	case "/groups":
		names := m.engine.Groups()
		if len(names) == 0 {
			m.appendSystem("No groups on server yet", false)
		} else {
			m.appendSystem(fmt.Sprintf("Groups: %s", strings.Join(names, ", ")), false)
		}

	case "/quit":
		if err := m.engine.RequestDisconnection(); err != nil {
			m.appendSystem(err.Error(), true)
			m.engine.Close()
			return m, tea.Quit
		}
		m.appendSystem("Disconnecting...", false)

	case "/help":
		m.showHelp = !m.showHelp

	default:
		m.appendSystem(fmt.Sprintf("Unknown command: %s", command), true)
	}

	m.input.Reset()
	return m, nil
}

func (m *Model) appendLine(l line) {
	m.lines = append(m.lines, l)
	m.refreshConversation()
}

func (m *Model) appendSystem(content string, isError bool) {
	m.appendLine(line{when: time.Now(), content: content, system: true, isError: isError})
}

func (m *Model) refreshConversation() {
	var content strings.Builder
	for _, l := range m.lines {
		content.WriteString(m.formatLine(l))
		content.WriteString("\n")
	}
	m.conversation.SetContent(content.String())
	m.conversation.GotoBottom()
}

func (m *Model) formatLine(l line) string {
	stamp := l.when.Format("15:04")
	if l.system {
		style := m.styles.SystemStyle
		if l.isError {
			style = m.styles.ErrorStyle
		}
		return style.Render(fmt.Sprintf("[%s] %s", stamp, l.content))
	}
	return m.styles.ChatStyle.Render(fmt.Sprintf("[%s] %s: %s", stamp, l.sender, l.content))
}

func (m *Model) renderStatusBar() string {
	group := m.engine.ActiveGroup()
	if group == "" {
		group = "none"
	}
	status := fmt.Sprintf("User: %s | Group: %s | Press ? for help",
		m.engine.Nickname(),
		m.styles.GroupStyle.Render(group))
	if m.disconnected {
		status = "Disconnected"
	}
	return m.styles.StatusStyle.Width(m.windowWidth).Render(status)
}

func (m *Model) renderHelp() string {
	help := `Commands:
  /add <group>    - Create a group (you become its admin)
  /join <group>   - Join a group
  /leave [group]  - Leave a group (defaults to the active one)
  /groups         - List groups known to the server
  /help           - Toggle this help
  /quit           - Disconnect gracefully

Keys:
  Enter           - Send message to the active group
  Ctrl+C          - Quit immediately`

	return m.styles.HelpStyle.Width(m.windowWidth - 4).Render(help)
}

func describeError(kind, details string) string {
	switch kind {
	case wire.ErrCodeNicknameTaken:
		return "That nickname is already taken"
	case wire.ErrCodeAlreadyConnected:
		return "That nickname is connected from another client"
	case wire.ErrCodeGroupNameTaken:
		return fmt.Sprintf("Group %s already exists", details)
	case wire.ErrCodeEmptyGroup:
		return fmt.Sprintf("Group %s does not exist or has no members", details)
	case wire.ErrCodeAlreadyInGroup:
		return fmt.Sprintf("Already a member of %s", details)
	default:
		if details != "" {
			return fmt.Sprintf("Error: %s (%s)", kind, details)
		}
		return fmt.Sprintf("Error: %s", kind)
	}
}

// Bubble Tea messages for engine events
type chatMsg struct {
	content string
	sender  string
}
type groupsMsg struct{ names []string }
type joinedMsg struct{ name string }
type leftMsg struct{ name string }
type errorMsg struct{ kind, details string }
type disconnectedMsg struct{}

// EventSink implementation. These run on the engine's read loop, so they only
// forward into the Bubble Tea runtime.

func (m *Model) OnMessage(content, sender string) {
	if m.program != nil {
		m.program.Send(chatMsg{content: content, sender: sender})
	}
}

func (m *Model) OnGroupsChanged(names []string) {
	if m.program != nil {
		m.program.Send(groupsMsg{names: names})
	}
}

func (m *Model) OnJoined(group string) {
	if m.program != nil {
		m.program.Send(joinedMsg{name: group})
	}
}

func (m *Model) OnLeft(group string) {
	if m.program != nil {
		m.program.Send(leftMsg{name: group})
	}
}

func (m *Model) OnError(kind, details string) {
	if m.program != nil {
		m.program.Send(errorMsg{kind: kind, details: details})
	}
}

func (m *Model) OnDisconnected() {
	if m.program != nil {
		m.program.Send(disconnectedMsg{})
	}
}
