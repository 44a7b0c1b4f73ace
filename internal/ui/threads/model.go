package threads

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/theme"
)

// SelectedMsg is sent when the user opens a conversation.
type SelectedMsg struct {
	CounterpartyID string
}

// Model is the conversation list view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new conversation list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Conversations"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("conversation", "conversations")

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetThreads replaces the listed threads, keeping the selection on the
// same counterparty when it is still present.
func (m *Model) SetThreads(ts []model.Thread) tea.Cmd {
	selected, _ := m.Selected()

	items := make([]list.Item, len(ts))
	index := 0
	for i, t := range ts {
		items[i] = Item{Thread: t}
		if t.CounterpartyID() == selected {
			index = i
		}
	}

	cmd := m.list.SetItems(items)
	m.list.Select(index)
	return cmd
}

// Selected returns the highlighted counterparty id.
func (m Model) Selected() (string, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return "", false
	}
	return it.Thread.CounterpartyID(), true
}

// Len returns the number of listed threads.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update handles messages for the conversation list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Select) {
		id, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return SelectedMsg{CounterpartyID: id} }
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the conversation list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.HelpStyle.Render("No conversations yet."))
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
