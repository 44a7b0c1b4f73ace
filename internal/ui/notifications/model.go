package notifications

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/theme"
)

// MarkReadMsg asks the parent to mark one notification read.
type MarkReadMsg struct {
	ID string
}

// MarkAllReadMsg asks the parent to mark every notification read.
type MarkAllReadMsg struct{}

// ClearAllMsg is sent once the user confirmed clearing all notifications.
type ClearAllMsg struct{}

// Model is the notification list view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int

	confirm      *huh.Form
	clearConfirm *bool
	err          error
}

// New creates a new notification list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetNotifications replaces the listed notifications, keeping the cursor
// on the same id when it is still present.
func (m *Model) SetNotifications(ns []model.Notification) tea.Cmd {
	selected, _ := m.Selected()

	items := make([]list.Item, len(ns))
	index := 0
	for i, n := range ns {
		items[i] = Item{Notification: n}
		if n.ID == selected {
			index = i
		}
	}

	cmd := m.list.SetItems(items)
	m.list.Select(index)
	return cmd
}

// Selected returns the highlighted notification.
func (m Model) Selected() (string, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return "", false
	}
	return it.Notification.ID, true
}

// Len returns the number of listed notifications.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Confirming reports whether the clear-all confirmation is open.
func (m Model) Confirming() bool {
	return m.confirm != nil
}

// SetError shows err above the list; nil clears it.
func (m *Model) SetError(err error) {
	m.err = err
}

// Update handles messages for the notification list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.confirm != nil {
		return m.updateConfirm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.MarkRead):
			id, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return MarkReadMsg{ID: id} }

		case key.Matches(msg, m.keys.MarkAllRead):
			if m.Len() == 0 {
				return m, nil
			}
			return m, func() tea.Msg { return MarkAllReadMsg{} }

		case key.Matches(msg, m.keys.ClearAll):
			if m.Len() == 0 {
				return m, nil
			}
			m.clearConfirm = new(bool)
			m.confirm = m.buildConfirmForm()
			return m, m.confirm.Init()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) buildConfirmForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Clear all notifications?").
				Description("They are deleted on the server as well.").
				Affirmative("Yes, clear").
				Negative("Cancel").
				Value(m.clearConfirm),
		),
	).WithWidth(max(m.width-8, 20))
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		m.confirm = nil
		return m, nil
	}

	mdl, cmd := m.confirm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirm = f
	}

	switch m.confirm.State {
	case huh.StateCompleted:
		return m.finishConfirm()
	case huh.StateAborted:
		m.confirm = nil
		return m, nil
	}
	return m, cmd
}

func (m Model) finishConfirm() (Model, tea.Cmd) {
	m.confirm = nil
	if m.clearConfirm == nil || !*m.clearConfirm {
		return m, nil
	}
	return m, func() tea.Msg { return ClearAllMsg{} }
}

// View renders the notification list or the confirmation dialog.
func (m Model) View() string {
	if m.confirm != nil {
		return theme.PanelStyle.
			Padding(1, 2).
			Width(m.width - 4).
			Render(m.confirm.View())
	}

	var errLine string
	if m.err != nil {
		errLine = theme.ErrorStyle.Render(m.err.Error())
	}

	if len(m.list.Items()) == 0 {
		empty := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height-lipgloss.Height(errLine)).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.HelpStyle.Render("You're all caught up."))
		if errLine == "" {
			return empty
		}
		return lipgloss.JoinVertical(lipgloss.Left, errLine, empty)
	}

	if errLine == "" {
		return m.list.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, errLine, m.list.View())
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
