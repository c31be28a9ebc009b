// Package styles holds the lipgloss styles used by the roomkit TUI.
package styles

import "github.com/charmbracelet/lipgloss"

// Styles is the full set of styles for one theme.
type Styles struct {
	Palette *ColorPalette

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Sidebar   lipgloss.Style
	Room      lipgloss.Style
	RoomFocus lipgloss.Style
	RoomOpen  lipgloss.Style
	Unread    lipgloss.Style
	Panel     lipgloss.Style
	Sender    lipgloss.Style
	Body      lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	StatusBar lipgloss.Style
	HelpKey   lipgloss.Style
}

// New builds Styles for the named theme. Unknown names use the default.
func New(theme string) Styles {
	p := GetPalette(ThemeName(theme))

	return Styles{
		Palette: p,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Primary).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(p.Muted).
			Italic(true),

		Sidebar: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1),

		Room: lipgloss.NewStyle().
			Foreground(p.Text).
			PaddingLeft(2),

		RoomFocus: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Text).
			Background(p.Primary).
			PaddingLeft(1).
			PaddingRight(1),

		RoomOpen: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Secondary).
			PaddingLeft(2),

		Unread: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Unread),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 2),

		Sender: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Sender),

		Body: lipgloss.NewStyle().
			Foreground(p.Text),

		Muted: lipgloss.NewStyle().
			Foreground(p.Muted),

		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Error),

		StatusBar: lipgloss.NewStyle().
			Foreground(p.Text).
			Background(p.Surface).
			Padding(0, 1),

		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Warning),
	}
}
