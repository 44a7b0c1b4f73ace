package help

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/theme"
)

// Model is the help overlay view. Besides the key bindings it shows who
// is signed in and the push connection state.
type Model struct {
	keys       *keys.KeyMap
	help       help.Model
	session    model.Session
	connection string
	width      int
	height     int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// SetSession records the signed-in identity.
func (m *Model) SetSession(sess model.Session) {
	m.session = sess
}

// SetConnection records the push connection state label.
func (m *Model) SetConnection(state string) {
	m.connection = state
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	helpText := m.help.View(m.keys)

	sections := []string{title, helpText}
	if m.session.UserID != "" {
		who := m.session.Name
		if who == "" {
			who = m.session.Email
		}
		info := lipgloss.JoinVertical(
			lipgloss.Left,
			titleStyle.MarginTop(1).Render("Session"),
			fmt.Sprintf("%s (%s)", who, m.session.Role),
			theme.DimmedStyle.Render("user "+m.session.UserID),
			"push "+theme.ConnectionStyle(m.connection).Render(m.connection),
		)
		sections = append(sections, info)
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
