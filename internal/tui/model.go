package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/tui/styles"
	"github.com/Iron-Ham/roomkit/internal/util"
)

// Layout constants
const (
	SidebarWidth    = 28 // Default sidebar width
	SidebarMinWidth = 20 // Minimum sidebar width
	SidebarMaxWidth = 60 // Maximum sidebar width

	// maxTimeline is the number of messages kept per room
	maxTimeline = 200
	// maxMessageLen caps composer input
	maxMessageLen = 500
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Compose key.Binding
	Send    key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Compose: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "write")),
		Send:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Room is one entry in the sidebar.
type Room struct {
	ID     string
	Name   string
	Unread int
}

// Model is the bubbletea model for the chat client. The sidebar publishes
// room:selected; everything else on screen is driven by bus events
// arriving as BusMsg.
type Model struct {
	bus    *event.Bus
	styles styles.Styles
	keys   keyMap

	composer  textinput.Model
	composing bool

	rooms    []Room
	cursor   int
	selected string
	timeline map[string][]event.Message

	user    string
	profile *event.Profile
	status  string
	failed  bool

	sidebarWidth int
	width        int
	height       int
}

// Watched returns the events Model reacts to. Forward them with a Bridge.
func Watched() []string {
	return []string{
		event.AuthLoginSuccess,
		event.AuthLogout,
		event.RoomSelected,
		event.RoomJoined,
		event.RoomLeft,
		event.MessageReceived,
		event.ProfileUpdated,
		event.SettingsChanged,
		event.SyncComplete,
		event.SyncError,
	}
}

// NewModel creates a Model seeded with the configured rooms.
func NewModel(bus *event.Bus, cfg *config.Config) Model {
	composer := textinput.New()
	composer.Placeholder = "Write a message"
	composer.CharLimit = maxMessageLen

	m := Model{
		bus:      bus,
		keys:     defaultKeyMap(),
		composer: composer,
		timeline: make(map[string][]event.Message),
		status:   "connecting…",
	}
	for _, r := range cfg.Rooms {
		m.rooms = append(m.rooms, Room{ID: r.ID, Name: r.Name})
	}
	m.applySettings(cfg)
	return m
}

func (m *Model) applySettings(cfg *config.Config) {
	m.styles = styles.New(cfg.TUI.Theme)
	m.sidebarWidth = SidebarWidth
	if cfg.TUI.SidebarWidth >= SidebarMinWidth && cfg.TUI.SidebarWidth <= SidebarMaxWidth {
		m.sidebarWidth = cfg.TUI.SidebarWidth
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case BusMsg:
		m.handleBus(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.composing {
		return m.handleComposerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rooms)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(m.rooms) {
			return m, publish(m.bus, event.RoomSelected, event.RoomSelection{RoomID: m.rooms[m.cursor].ID})
		}
	case key.Matches(msg, m.keys.Compose):
		if m.selected != "" {
			m.composing = true
			cmd := m.composer.Focus()
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) handleComposerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.stopComposing()
		return m, nil
	case key.Matches(msg, m.keys.Send):
		body := strings.TrimSpace(m.composer.Value())
		m.stopComposing()
		if body == "" || m.selected == "" {
			return m, nil
		}
		return m, publish(m.bus, event.MessageReceived, event.Message{
			RoomID:    m.selected,
			EventID:   "$local-" + uuid.NewString(),
			Sender:    m.user,
			Body:      body,
			Timestamp: time.Now(),
		})
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m *Model) stopComposing() {
	m.composing = false
	m.composer.Blur()
	m.composer.SetValue("")
}

// publish returns a command that publishes off the update goroutine.
func publish(bus *event.Bus, name string, payload any) tea.Cmd {
	return func() tea.Msg {
		bus.Publish(name, payload)
		return nil
	}
}

func (m *Model) handleBus(msg BusMsg) {
	switch p := msg.Payload.(type) {
	case event.RoomSelection:
		if p.RoomID != m.selected {
			m.stopComposing()
		}
		m.selectRoom(p.RoomID)

	case event.Membership:
		if msg.Name == event.RoomLeft {
			m.removeRoom(p.RoomID)
		} else {
			m.addRoom(p)
		}

	case event.Message:
		m.appendMessage(p)

	case event.Profile:
		m.profile = &p

	case event.Login:
		m.user = p.UserID
		m.setStatus(fmt.Sprintf("signed in as %s", p.UserID), false)

	case event.Logout:
		m.user = ""
		m.profile = nil
		m.setStatus("signed out", false)

	case event.SyncStatus:
		m.setStatus(fmt.Sprintf("synced %d rooms (%s)", p.Rooms, p.NextBatch), false)

	case event.SyncFailure:
		// Only user-facing errors are shown; the rest stay in the log.
		text := "sync failed"
		if errors.IsUserFacing(p.Err) {
			text = fmt.Sprintf("sync failed: %v", p.Err)
		}
		if p.Retryable {
			text += " (retrying)"
		}
		m.setStatus(text, true)

	case event.Settings:
		if cfg, ok := p.Values.(*config.Config); ok {
			m.applySettings(cfg)
			m.setStatus("settings reloaded", false)
		}
	}
}

func (m *Model) setStatus(text string, failed bool) {
	m.status = text
	m.failed = failed
}

func (m *Model) selectRoom(id string) {
	m.selected = id
	for i := range m.rooms {
		if m.rooms[i].ID == id {
			m.rooms[i].Unread = 0
			m.cursor = i
		}
	}
}

func (m *Model) addRoom(p event.Membership) {
	for _, r := range m.rooms {
		if r.ID == p.RoomID {
			return
		}
	}
	name := p.Name
	if name == "" {
		name = p.RoomID
	}
	m.rooms = append(m.rooms, Room{ID: p.RoomID, Name: name})
}

func (m *Model) removeRoom(id string) {
	for i, r := range m.rooms {
		if r.ID != id {
			continue
		}
		m.rooms = append(m.rooms[:i], m.rooms[i+1:]...)
		delete(m.timeline, id)
		if m.selected == id {
			m.selected = ""
			m.stopComposing()
		}
		if m.cursor >= len(m.rooms) && m.cursor > 0 {
			m.cursor = len(m.rooms) - 1
		}
		return
	}
}

func (m *Model) appendMessage(msg event.Message) {
	tl := append(m.timeline[msg.RoomID], msg)
	if len(tl) > maxTimeline {
		tl = tl[len(tl)-maxTimeline:]
	}
	m.timeline[msg.RoomID] = tl

	if msg.RoomID == m.selected {
		return
	}
	for i := range m.rooms {
		if m.rooms[i].ID == msg.RoomID {
			m.rooms[i].Unread++
		}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), " ", m.renderPanel())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus())
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Rooms"))
	b.WriteString("\n")

	for i, r := range m.rooms {
		label := util.Truncate(r.Name, m.sidebarWidth-8)
		if r.Unread > 0 {
			label += " " + m.styles.Unread.Render(fmt.Sprintf("(%d)", r.Unread))
		}
		switch {
		case i == m.cursor:
			b.WriteString(m.styles.RoomFocus.Render("> " + label))
		case r.ID == m.selected:
			b.WriteString(m.styles.RoomOpen.Render(label))
		default:
			b.WriteString(m.styles.Room.Render(label))
		}
		b.WriteString("\n")
	}
	if len(m.rooms) == 0 {
		b.WriteString(m.styles.Muted.Render("no rooms"))
	}

	return m.styles.Sidebar.Width(m.sidebarWidth).Render(b.String())
}

func (m Model) renderPanel() string {
	var b strings.Builder

	if m.profile != nil {
		b.WriteString(m.styles.Subtitle.Render(fmt.Sprintf("%s (%s)", m.profile.DisplayName, m.profile.UserID)))
		b.WriteString("\n\n")
	}

	if m.selected == "" {
		b.WriteString(m.styles.Muted.Render("Select a room with ↑/↓ and enter"))
	} else {
		b.WriteString(m.styles.Title.Render(m.roomName(m.selected)))
		b.WriteString("\n")
		msgs := m.timeline[m.selected]
		if len(msgs) == 0 {
			b.WriteString(m.styles.Muted.Render("no messages yet"))
		}
		for _, msg := range m.visible(msgs) {
			b.WriteString(m.styles.Sender.Render(util.Localpart(msg.Sender)))
			b.WriteString(" ")
			b.WriteString(m.styles.Body.Render(msg.Body))
			b.WriteString("\n")
		}
		if m.composing {
			b.WriteString("\n")
			b.WriteString(m.composer.View())
		}
	}

	width := m.width - m.sidebarWidth - 6
	if width < 20 {
		width = 20
	}
	return m.styles.Panel.Width(width).Render(b.String())
}

// visible trims msgs to what fits in the panel.
func (m Model) visible(msgs []event.Message) []event.Message {
	rows := m.height - 8
	if m.height == 0 || rows >= len(msgs) {
		return msgs
	}
	if rows < 1 {
		rows = 1
	}
	return msgs[len(msgs)-rows:]
}

func (m Model) renderStatus() string {
	status := m.status
	if m.failed {
		status = m.styles.Error.Render(status)
	}
	bindings := []key.Binding{m.keys.Open, m.keys.Compose, m.keys.Quit}
	if m.composing {
		bindings = []key.Binding{m.keys.Send, m.keys.Cancel}
	}
	var help []string
	for _, k := range bindings {
		h := k.Help()
		help = append(help, m.styles.HelpKey.Render(h.Key)+" "+h.Desc)
	}
	return m.styles.StatusBar.Render(status + "  " + strings.Join(help, "  "))
}

func (m Model) roomName(id string) string {
	for _, r := range m.rooms {
		if r.ID == id {
			return r.Name
		}
	}
	return id
}

// Selected returns the id of the open room, or "".
func (m Model) Selected() string {
	return m.selected
}

// Rooms returns the sidebar entries.
func (m Model) Rooms() []Room {
	return append([]Room(nil), m.rooms...)
}

// Timeline returns the messages held for a room.
func (m Model) Timeline(roomID string) []event.Message {
	return append([]event.Message(nil), m.timeline[roomID]...)
}

// Composing reports whether the message composer has focus.
func (m Model) Composing() bool {
	return m.composing
}

// Status returns the status bar text and whether it reports a failure.
func (m Model) Status() (string, bool) {
	return m.status, m.failed
}
