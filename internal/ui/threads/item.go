package threads

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/theme"
	"github.com/nhle/agriassist/internal/ui"
)

// Item wraps a model.Thread so it can be used in a bubbles/list.
type Item struct {
	Thread model.Thread
}

// FilterValue returns the string used for filtering.
func (i Item) FilterValue() string { return i.Thread.Counterparty.Name }

// Title returns the counterparty name, falling back to the id.
func (i Item) Title() string {
	if i.Thread.Counterparty.Name != "" {
		return i.Thread.Counterparty.Name
	}
	return i.Thread.CounterpartyID()
}

// ItemDelegate renders one thread per two lines.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 1 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a thread: name, unread badge and time on the first line,
// the last message preview on the second.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	now := time.Now()
	th := it.Thread
	width := m.Width() - 4

	name := it.Title()
	if th.UnreadCount > 0 {
		name = lipgloss.NewStyle().Bold(true).Render(name) + " " +
			theme.UnreadBadgeStyle.Render(ui.Count(th.UnreadCount))
	}
	if th.Product != nil && th.Product.Name != "" {
		name += theme.DimmedStyle.Render(" · " + th.Product.Name)
	}
	when := theme.DimmedStyle.Render(ui.RelativeTime(th.LastMessageTime, now))

	gap := width - lipgloss.Width(name) - lipgloss.Width(when)
	if gap < 1 {
		gap = 1
	}
	first := name + lipgloss.NewStyle().Width(gap).Render("") + when

	preview := ui.Truncate(th.LastMessage, width)
	if th.UnreadCount == 0 {
		preview = theme.DimmedStyle.Render(preview)
	}

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}

	fmt.Fprint(w, style.Render(first+"\n"+preview))
}
